// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coordinator_test

import (
	"bufio"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/saiblo/local-judger-go/internal/framing"
)

// TestHelperProcess is not a real test. It is re-executed as a standalone
// process (via a wrapper shell script) to stand in for the game-logic
// subprocess, the same self-exec trick os/exec_test.go uses to avoid
// shipping a second compiled binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("JUDGER_TEST_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	out, err := os.OpenFile(os.Getenv("HELPER_OUTFILE"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper: cannot open outfile:", err)
		os.Exit(1)
	}
	defer out.Close()

	stdin := bufio.NewReader(os.Stdin)

	// init message
	if _, err := framing.ReadFrame(stdin, 0); err != nil {
		return
	}

	switch os.Getenv("HELPER_SCENARIO") {
	case "happy":
		runHappyPathHelper(stdin, out)
	case "recorder-one":
		runRecorderOnceHelper(stdin, out)
	}
}

func runHappyPathHelper(stdin *bufio.Reader, out *os.File) {
	mustWriteTargeted(os.Stdout, -1, []byte(`{"state":1,"listen":[0],"player":[0],"content":["go"]}`))

	payload, err := framing.ReadFrame(stdin, 0)
	if err != nil {
		return
	}
	out.Write(payload)
	out.WriteString("\n")

	mustWriteTargeted(os.Stdout, -1, []byte(`{"state":-1,"end_info":"{\"0\":1,\"1\":0}"}`))
}

// runRecorderOnceHelper records whatever arrives on stdin for a short
// window and then exits on its own, standing in for a logic process that
// never reports GAME_OVER. The exit is time-based rather than
// frame-count-based so the test harness never blocks waiting on a frame
// that the scenario under test doesn't produce.
func runRecorderOnceHelper(stdin *bufio.Reader, out *os.File) {
	go func() {
		for {
			payload, err := framing.ReadFrame(stdin, 0)
			if err != nil {
				return
			}
			out.Write(payload)
			out.WriteString("\n")
		}
	}()
	time.Sleep(300 * time.Millisecond)
}

func mustWriteTargeted(out *os.File, target int32, payload []byte) {
	_ = framing.WriteTargetedFrame(out, target, payload)
}
