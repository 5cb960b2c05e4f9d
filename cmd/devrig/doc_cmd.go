package main

import (
	"github.com/alecthomas/kong"
)

type DocCmd struct{}

func (c *DocCmd) Run(kctx *kong.Context) error {
	return MarkdownHelpPrinter(kong.HelpOptions{}, kctx)
}
