// Command lay is the lay client.
//
//	lay keygen                      create the identity key
//	lay whoami                      print the public key
//	lay post <text>                 publish a post
//	lay profile set <name>          publish a display name
//	lay profile get [key]           show a profile (default: own)
//	lay read                        print the current posts once
//	lay chat                        interactive poll client
//	lay config show                 print the effective configuration
//
// Settings come from --config YAML, LAY_* environment variables and flags,
// in increasing priority.
package main

import "os"

var version = "dev"

func main() {
	if err := Execute(version); err != nil {
		os.Exit(1)
	}
}
