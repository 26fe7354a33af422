// Package main provides the Tinn ML Framework CLI.
package main

import (
	"fmt"
	"os"

	"github.com/tinn-ml/tinn/backend/webgpu"
)

const version = "v0.0.1-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("Tinn ML Framework %s\n", version)
			return
		case "devices":
			gpu, err := webgpu.New()
			if err != nil {
				fmt.Printf("webgpu: unavailable (%v)\n", err)
				fmt.Println("cpu:    available")
				return
			}
			gpu.Close()
			fmt.Println("webgpu: available")
			fmt.Println("cpu:    available")
			return
		}
	}

	fmt.Println("Tinn ML Framework - Fast Small Neural Networks for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  devices    Probe compute backends")
}
