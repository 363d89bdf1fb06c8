// ws_bridge exposes a trialdesk RPC subprocess over a WebSocket so a
// desktop shell can talk JSON-RPC without owning the process pipes.
// Usage: ws_bridge [-addr :8080] -- trialdesk -rpc [-p project]
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	cmdArgs := flag.Args()
	if len(cmdArgs) == 0 {
		log.Fatal("usage: ws_bridge [-addr :8080] <command> [args...]")
	}

	http.HandleFunc("/ws", handleWS(cmdArgs))
	fmt.Printf("WebSocket bridge running on ws://localhost%s/ws\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

// frame is one line of subprocess output relayed to the client.
type frame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		// One assistant process per connection.
		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}
		if err := cmd.Start(); err != nil {
			log.Println("Error starting assistant:", err)
			return
		}
		defer cmd.Process.Kill()

		// Gorilla connections allow one concurrent writer.
		var writeMu sync.Mutex
		relay := func(kind string, src *bufio.Scanner) {
			for src.Scan() {
				payload, err := json.Marshal(frame{Type: kind, Data: src.Text()})
				if err != nil {
					continue
				}
				writeMu.Lock()
				err = conn.WriteMessage(websocket.TextMessage, payload)
				writeMu.Unlock()
				if err != nil {
					log.Println("WS write error:", err)
					return
				}
			}
		}

		// Assistant stdout carries JSON-RPC; stderr carries logs.
		go relay("stdout", bufio.NewScanner(stdout))
		go relay("stderr", bufio.NewScanner(stderr))

		// WebSocket messages feed the assistant's stdin line by line.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}
