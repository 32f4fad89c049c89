// Command letsgo runs the gateway daemon and its operator tooling: pairing
// inspection, health checks, and Postgres schema migrations.
package main

func main() {
	Execute()
}
