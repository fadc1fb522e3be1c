// plcdump is a bench diagnostic: it connects to the PLC, polls every
// register and coil once and prints the snapshot as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/plc"
)

func main() {
	addr := flag.String("addr", "192.168.1.88:502", "PLC modbus TCP address")
	slave := flag.Int("slave", 1, "Modbus slave ID")
	timeout := flag.Duration("timeout", 2*time.Second, "Transaction timeout")
	watch := flag.Bool("watch", false, "Poll once a second until interrupted")
	flag.Parse()

	log.Init("warn")

	link, err := plc.Dial(*addr, byte(*slave), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer link.Close()

	for {
		out, err := json.MarshalIndent(link.State(), "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		if !*watch {
			return
		}
		time.Sleep(time.Second)
	}
}
