package comm

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/multiscale-cosim/EBRAINS-InterscaleHUB/pkg/bridge/types"
)

// WaitForUnlockSentinel polls for path+".unlock" every second until it
// appears, then reads and returns the id file's integer contents
// (spec.md section 4.7 / 5: "waiting for the NEST-side
// spike_generator.txt.unlock sentinel to appear, then reading the ID
// file"). If ctx is cancelled before the sentinel appears, a wrapped
// ErrHandshakeTimeout is returned; passing context.Background() makes the
// poll unbounded, the documented default (spec.md section 7).
func WaitForUnlockSentinel(ctx context.Context, path string) ([]int, error) {
	sentinel := path + ".unlock"
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(sentinel); err == nil {
			return readIDFile(path)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s never appeared: %v", types.ErrHandshakeTimeout, sentinel, ctx.Err())
		case <-ticker.C:
		}
	}
}

// readIDFile parses one integer id per line from path.
func readIDFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open id file %s: %v", types.ErrSetupFailure, path, err)
	}
	defer f.Close()

	var ids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("%w: bad id line %q in %s: %v", types.ErrSetupFailure, line, path, err)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read id file %s: %v", types.ErrSetupFailure, path, err)
	}
	return ids, nil
}

// ReadHandshakeAddress reads the plain-text address published by the peer
// at path (used by tests emulating the peer side of a handshake).
func ReadHandshakeAddress(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read handshake %s: %v", types.ErrSetupFailure, path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
