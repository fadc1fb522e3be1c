// camlist is a bench diagnostic: it resolves the configured camera
// keywords against the attached video devices and prints what it finds.
package main

import (
	"flag"
	"fmt"

	"github.com/cropeye/rig/internal/config"
	"github.com/cropeye/rig/internal/log"
	"github.com/cropeye/rig/pkg/camera"
)

func main() {
	configPath := flag.String("config", "rig.yaml", "Path to YAML config")
	flag.Parse()

	log.Init("warn")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("config:", err)
		return
	}

	resolver := camera.V4L2Resolver{}
	report := func(label, keyword string) {
		path, err := resolver.Resolve(keyword)
		if err != nil {
			fmt.Printf("%-10s %-16s missing\n", label, keyword)
			return
		}
		fmt.Printf("%-10s %-16s %s\n", label, keyword, path)
	}

	report("preview", cfg.Camera.Keyword)
	for band, ch := range cfg.Multispec.Channels {
		report(band, ch.Keyword)
	}
}
