/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/mautops/approval-engine/cmd"

func main() {
	cmd.Execute()
}
