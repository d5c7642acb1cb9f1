package banner

import "fmt"

const banner = `
 ██████╗ ██╗  ██╗ ██████╗
██╔═████╗╚██╗██╔╝██╔═████╗
██║██╔██║ ╚███╔╝ ██║██╔██║
████╔╝██║ ██╔██╗ ████╔╝██║
╚██████╔╝██╔╝ ██╗╚██████╔╝
 ╚═════╝ ╚═╝  ╚═╝ ╚═════╝
`

// Print shows the startup banner with the effective runtime info.
func Print(addr, dataPath, number, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", addr)
	fmt.Printf("Data Path: %s\n", dataPath)
	if number != "" {
		fmt.Printf("Number:    %s\n", number)
	}
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /ws                    - frontend event stream + commands")
	fmt.Println("GET  /v1/inbox              - pin threads with unread counts")
	fmt.Println("POST /v1/messages           - send on one of your pins")
	fmt.Println("POST /v1/contacts           - save a peer's number + pin")
	fmt.Println("GET  /healthz, /metrics, /docs/")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://localhost%s/v1/inbox' -H 'X-API-Key: <key>'\n", addr)
	fmt.Printf("curl -X POST 'http://localhost%s/v1/messages' -H 'X-API-Key: <key>' -d '{\"pin\":\"abc123\",\"content\":\"hello\"}'\n", addr)
}
