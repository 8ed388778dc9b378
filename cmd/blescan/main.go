// Command blescan is a manual test for BLE discovery. It scans for
// peripherals advertising the HM-10 UART service and prints what it finds.
//
// Usage:
//
//	go run ./cmd/blescan [--timeout 10s]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"plugwatch/internal/ble"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	flag.Parse()

	adapter := ble.NewTinygoAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("enabling bluetooth: %v", err)
	}

	fmt.Printf("Scanning for service %s (%s)...\n", ble.ServiceUUID, *timeout)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, ble.ServiceUUID)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	if len(devices) == 0 {
		fmt.Println("No peripherals found.")
		return
	}

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-20s %s  RSSI %d\n", name, d.Address, d.RSSI)
	}
}
