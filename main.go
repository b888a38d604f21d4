package main

import "github.com/xen-troops/rouge/cmd"

func main() {
	cmd.Execute()
}
