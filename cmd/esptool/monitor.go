package main

import (
	"fmt"
	"os"
	"time"

	"github.com/DonKinzer/esp-tool/loader"
)

// runMonitor echoes device output to the console until the exit character
// is typed. Keyboard input is forwarded to the device; carriage returns
// from the device are dropped. Output is optionally logged to a file.
func runMonitor(esp *loader.Client, parm *params) {
	var logFp *os.File
	if parm.logFile != "" {
		var err error
		if logFp, err = os.Create(parm.logFile); err != nil {
			fmt.Fprintf(os.Stderr, "Can't create monitor log file %q.\n", parm.logFile)
			logFp = nil
		} else {
			defer logFp.Close()
		}
	}

	if openComm(esp, parm, false) != nil {
		return
	}

	// Console input arrives through a reader goroutine so the device side
	// never blocks on the keyboard.
	keys := make(chan byte, 64)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				close(keys)
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()

	for {
		if esp.BytesAvailable() == 0 {
			select {
			case c, ok := <-keys:
				if !ok {
					return
				}
				if c == '\r' {
					c = '\n'
				}
				if c == parm.monExit {
					return
				}
				esp.WriteByte(c)
			case <-time.After(time.Millisecond):
			}
			continue
		}

		if c := esp.ReadByte(); c != '\r' {
			fmt.Printf("%c", c)
			if logFp != nil {
				fmt.Fprintf(logFp, "%c", c)
			}
		}
	}
}
