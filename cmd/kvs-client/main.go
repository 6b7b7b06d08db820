// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Command kvs-client issues one GET/SET/REMOVE request against a running
// kvs-server, per spec.md §6 "CLI surfaces".
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dreamsxin/kvs/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "set":
		err = runSet(args)
	case "get":
		err = runGet(args)
	case "rm":
		err = runRemove(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvs-client {set [--addr host:port] KEY VALUE|get [--addr host:port] KEY|rm [--addr host:port] KEY}")
}

func runSet(args []string) error {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "server address")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("kvs-client set: expected KEY VALUE")
	}
	key, value := fs.Arg(0), fs.Arg(1)

	c, err := client.Connect(*addr)
	if err != nil {
		return err
	}
	return c.Set(key, value)
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "server address")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("kvs-client get: expected KEY")
	}
	key := fs.Arg(0)

	c, err := client.Connect(*addr)
	if err != nil {
		return err
	}
	value, ok, err := c.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Key not found")
		return nil
	}
	fmt.Println(value)
	return nil
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "server address")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("kvs-client rm: expected KEY")
	}
	key := fs.Arg(0)

	c, err := client.Connect(*addr)
	if err != nil {
		return err
	}
	return c.Remove(key)
}
