// Command verdant is a CLI for working with a local Verdant store:
//
//	verdant -data DIR put FILE            store a file, print its code
//	verdant -data DIR put -encrypt FILE   store encrypted
//	verdant -data DIR get CODE            print the content behind a code
//	verdant -data DIR ls CODE             list a directory
//	verdant -data DIR publish OWNER TREE CODE   point a ref at content
//	verdant -data DIR resolve OWNER TREE  print the current code of a ref
//	verdant -data DIR backup FILE         write all blocks to an archive
//	verdant -data DIR restore FILE        load blocks from an archive
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	verdant "github.com/verdantfs/verdant"
	"github.com/verdantfs/verdant/pkg/refcode"
	"github.com/verdantfs/verdant/pkg/types"
)

func main() {
	dataPath := flag.String("data", "", "data directory")
	encrypt := flag.Bool("encrypt", false, "encrypt stored content")
	flag.Parse()

	if *dataPath == "" || flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	node, err := verdant.New(verdant.Config{
		Paths:  []string{*dataPath},
		Logger: logger,
	})
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		fatal(err)
	}
	defer node.Close(context.Background())

	if err := dispatch(ctx, node, *encrypt, flag.Args()); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "verdant:", err)
	os.Exit(1)
}

func dispatch(ctx context.Context, node *verdant.Node, encrypt bool, args []string) error {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "put":
		return runPut(ctx, node, encrypt, rest)
	case "get":
		return runGet(ctx, node, rest)
	case "ls":
		return runLs(ctx, node, rest)
	case "publish":
		return runPublish(ctx, node, rest)
	case "resolve":
		return runResolve(ctx, node, rest)
	case "backup":
		return runBackup(ctx, node, rest)
	case "restore":
		return runRestore(ctx, node, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runPut(ctx context.Context, node *verdant.Node, encrypt bool, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: put FILE")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	cid, size, err := node.PutFile(ctx, f, encrypt)
	if err != nil {
		return err
	}
	code, err := refcode.EncodeBlob(cid)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%d bytes\n", code, size)
	return nil
}

func runGet(ctx context.Context, node *verdant.Node, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get CODE")
	}
	cid, err := node.ResolveCode(ctx, args[0])
	if err != nil {
		return err
	}
	data, err := node.ReadFile(ctx, cid)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runLs(ctx context.Context, node *verdant.Node, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ls CODE")
	}
	cid, err := node.ResolveCode(ctx, args[0])
	if err != nil {
		return err
	}
	entries, err := node.Tree().ListDirectory(ctx, cid)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entryCode, err := refcode.EncodeBlob(entry.CID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d\t%s\t%s\n", entry.Type, entry.Size, entry.Name, entryCode)
	}
	return nil
}

func runPublish(ctx context.Context, node *verdant.Node, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: publish OWNER TREE CODE")
	}
	cid, err := refcode.DecodeBlob(args[2])
	if err != nil {
		return err
	}
	visibility := types.RefPublic
	if cid.Encrypted() {
		visibility = types.RefEncrypted
	}
	code, err := node.PublishRef(ctx, types.RefKey{Owner: args[0], Tree: args[1]}, cid, visibility)
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}

func runResolve(ctx context.Context, node *verdant.Node, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: resolve OWNER TREE")
	}
	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cid, err := node.Resolver().Resolve(resolveCtx, types.RefKey{Owner: args[0], Tree: args[1]})
	if err != nil {
		return err
	}
	code, err := refcode.EncodeBlob(cid)
	if err != nil {
		return err
	}
	fmt.Println(code)
	return nil
}

func runBackup(ctx context.Context, node *verdant.Node, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: backup FILE")
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	return node.Backup(ctx, f)
}

func runRestore(ctx context.Context, node *verdant.Node, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: restore FILE")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	restored, err := node.Restore(ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("restored %d blocks\n", restored)
	return nil
}
