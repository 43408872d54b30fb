// Command jobkb crawls job listings into a knowledge base and serves it.
package main

import "github.com/JakeFAU/jobkb-crawler/cmd"

func main() {
	cmd.Execute()
}
