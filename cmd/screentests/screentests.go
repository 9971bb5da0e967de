package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/screen"
)

// Reads "x y thetaDeg [stage]" lines from stdin and shows them on the
// status screen.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx := context.Background()

	var lock sync.Mutex
	status := screen.Status{Stage: "screentest", BattVolts: 7.4}

	go screen.LoopUpdatingScreen(ctx, "/dev/fb1", func() screen.Status {
		lock.Lock()
		defer lock.Unlock()
		return status
	}, log.Logger)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nFailed to read stdin: ", err)
			return
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			fmt.Println("Expected: x y thetaDeg [stage]")
			continue
		}
		var vals [3]float64
		ok := true
		for i := range vals {
			vals[i], err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				fmt.Println("Bad number: ", fields[i])
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		lock.Lock()
		status.Pose = pose.Pose{X: vals[0], Y: vals[1], Theta: angle.ToRadians(vals[2])}
		if len(fields) > 3 {
			status.Stage = fields[3]
		}
		lock.Unlock()
	}
}
