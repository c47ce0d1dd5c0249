package main

import (
	"fmt"
	"os"
)

const Version = "0.3.0"

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("ptyhost v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "serve":
			handleServe(args[1:])
			return
		case "attach":
			handleAttach(args[1:])
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printHelp()
			os.Exit(1)
		}
	}

	handleServe(nil)
}

func printHelp() {
	fmt.Println("ptyhost - PTY session host for attn agent sessions")
	fmt.Println()
	fmt.Println("Usage: ptyhost [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Run the session host (default)")
	fmt.Println("  attach     Attach the current terminal to a session")
	fmt.Println("  version    Print version")
	fmt.Println("  help       Show this help")
	fmt.Println()
	fmt.Println("Run 'ptyhost <command> --help' for command options.")
}
