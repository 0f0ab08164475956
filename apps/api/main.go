package main

// TODO:
// - per-route rate limiting of /v1/users/login
// - APM/Tracing of the clustering & WhatsApp calls
func main() {
	startWithDig()
}
