package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/moonshotcommons/timelock/auth"
	"github.com/moonshotcommons/timelock/config"
	"github.com/moonshotcommons/timelock/timelock"
)

// runToken implements the "token" subcommand, which prints a bearer token for a caller.
func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	callerFlag := fs.String("caller", "", "address of the caller (required)")
	ttl := fs.Duration("ttl", 0, "lifetime of the token (default: auth.maxTokenTTL)")

	err := fs.Parse(args)
	if err != nil {
		return err
	}
	if *callerFlag == "" {
		return errors.New("flag -caller is required")
	}

	caller, err := timelock.ParseAddress(*callerFlag)
	if err != nil {
		return fmt.Errorf("invalid caller: %w", err)
	}

	// The issuer doesn't use the replay cache
	issuer, err := auth.NewIssuer(authOptions(cfg, nil))
	if err != nil {
		return err
	}
	token, err := issuer.Issue(caller, *ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

