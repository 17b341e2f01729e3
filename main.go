/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/reverside/timetracker/cmd"

func main() {
	cmd.Execute()
}
