package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"retro-backend/internal/config"
	"retro-backend/internal/server"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	// `retro-backend hash-password <password>` prints a value for ADMIN_PASSWORD_HASH
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg)
	if err := srv.Initialize(); err != nil {
		srv.Echo.Logger.Fatal(err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		srv.Echo.Logger.Info("Shutting down")
		if err := srv.Close(); err != nil {
			srv.Echo.Logger.Warnf("Error while closing resources: %v", err)
		}
		os.Exit(0)
	}()

	srv.Echo.Logger.Fatal(srv.Start())
}

func hashPassword(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("usage: retro-backend hash-password <password>")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}
