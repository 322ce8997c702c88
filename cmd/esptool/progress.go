package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/DonKinzer/esp-tool/loader"
)

// consoleProgress renders loader progress on the console: dots while
// connecting, a progress bar for block transfers.
func consoleProgress() loader.ProgressFunc {
	var bar *progressbar.ProgressBar
	var barPhase string

	return func(p loader.Progress) {
		switch p.Phase {
		case loader.PhaseConnect:
			if p.Block == 1 {
				fmt.Print("Connecting ")
			}
			fmt.Print(".")
			return

		case loader.PhaseErase:
			fmt.Printf("Erasing %d blocks at 0x%06x...\n", p.TotalBlocks, p.Addr)
			bar = nil
			return
		}

		if bar == nil || barPhase != p.Phase {
			barPhase = p.Phase
			desc := "Writing"
			if p.Phase == loader.PhaseRead {
				desc = "Reading"
			} else if p.Phase == loader.PhaseDump {
				desc = "Dumping"
			}
			total := p.TotalBlocks
			if total == 0 {
				total = -1
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(desc),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		bar.Set(p.Block)
	}
}
