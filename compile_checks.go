package tiktokshop

import (
	"github.com/goliatone/go-tiktokshop/command"
	"github.com/goliatone/go-tiktokshop/query"
)

var (
	_ command.Service        = (*Manager)(nil)
	_ query.CredentialReader = (*Manager)(nil)
)
