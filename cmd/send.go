package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/autodebug/autodebug/pkg/ipc"
	"github.com/autodebug/autodebug/pkg/types"
	"github.com/spf13/cobra"
)

const dialTimeout = 5 * time.Second

var (
	handleFlag string
	fileFlag   string
	pidFlag    int
)

var sendCmd = &cobra.Command{
	Use:   "send [JSON...]",
	Short: "Send launch requests to a running server",
	Long: `Send writes each argument, or each non-empty line of --file, as one frame.
Every frame must be a JSON object. The handle defaults to $AUTODEBUG_IPC_HANDLE.`,
	RunE: runSend,
}

var notifyPIDCmd = &cobra.Command{
	Use:   "notify-pid",
	Short: "Ask the server to attach to a process",
	Long: `notify-pid sends {"pid": N} to the handle in $AUTODEBUG_IPC_HANDLE. It does
nothing when the variable is unset, so it is safe to call from shell profiles.
The pid defaults to the parent process.`,
	Args: cobra.NoArgs,
	RunE: runNotifyPID,
}

func runSend(cmd *cobra.Command, args []string) error {
	handle := handleFlag
	if handle == "" {
		handle = os.Getenv(rootCfg.IPC.EnvVar)
	}
	if handle == "" {
		return types.NewError(types.ErrCodeInvalidArgument,
			"no handle: pass --handle or set "+rootCfg.IPC.EnvVar)
	}

	frames := args
	if fileFlag != "" {
		fromFile, err := readFrames(cmd.InOrStdin(), fileFlag)
		if err != nil {
			return err
		}
		frames = append(frames, fromFile...)
	}
	if len(frames) == 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "nothing to send")
	}

	// Validate everything before writing anything
	for i, f := range frames {
		if _, err := ipc.ParseLaunchRequest(f); err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	defer cancel()

	client, err := ipc.Dial(ctx, handle)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, f := range frames {
		if err := client.SendRaw([]byte(f)); err != nil {
			return err
		}
	}
	rootLog.Debug("frames sent", "handle", handle, "count", len(frames))
	return nil
}

// readFrames returns the non-empty lines of path, or of stdin when path is "-"
func readFrames(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, types.WrapError(types.ErrCodeNotFound, "failed to open "+path, err)
		}
		defer f.Close()
		r = f
	}

	var frames []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			frames = append(frames, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalidArgument, "failed to read frames", err)
	}
	return frames, nil
}

func runNotifyPID(cmd *cobra.Command, args []string) error {
	handle := os.Getenv(rootCfg.IPC.EnvVar)
	if handle == "" {
		return nil
	}

	pid := pidFlag
	if pid <= 0 {
		pid = os.Getppid()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	defer cancel()

	return ipc.Send(ctx, handle, map[string]int{"pid": pid})
}

func init() {
	sendCmd.Flags().StringVar(&handleFlag, "handle", "", "Handle path (default: $AUTODEBUG_IPC_HANDLE)")
	sendCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read frames from a file, one JSON object per line (- for stdin)")
	notifyPIDCmd.Flags().IntVar(&pidFlag, "pid", 0, "Process id to report (default: parent process)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(notifyPIDCmd)
}
