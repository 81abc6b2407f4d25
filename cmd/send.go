/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	serialport "github.com/allbin/go-serialport"
	"github.com/allbin/go-serialport/internal/tui/styles"
	"github.com/allbin/go-serialport/transport"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(styles.Mauve).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(styles.Green).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Red).Bold(true)
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port with configurable options.

Data can be provided as:
- Command line argument: send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialport send /dev/ttyUSB0
- Interactive mode: serialport send /dev/ttyUSB0 (one write per line)

Features include:
- Automatic line endings (--newline flag)
- Hex input support (--hex flag)
- Connection status feedback with styled output

Example usage:
  serialport send "Hello World" /dev/ttyUSB0
  serialport send "AT+GMR" /dev/ttyUSB0 --newline
  serialport send "48 65 6c 6c 6f" /dev/ttyUSB0 --hex
  echo "test" | serialport send /dev/ttyUSB0
  serialport send /dev/ttyUSB0  # Interactive mode`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		encoding, _ := cmd.Flags().GetString("encoding")

		enc := payloadEncoder{hex: hexMode, newline: addNewline}
		portPath := args[len(args)-1]

		ctx, cancel := interruptContext()
		defer cancel()

		fmt.Printf("%s Opening %s...\n", infoStyle.Render("⚡"), portPath)
		s, err := openSession(ctx, portPath, nil)
		if err != nil {
			fail("%s %v", errorStyle.Render("✗"), err)
		}
		defer closeSession(s)
		fmt.Printf("%s Connected successfully\n", successStyle.Render("✓"))

		if len(args) == 2 {
			data, err := enc.encode(args[0])
			if err != nil {
				fail("invalid hex data: %v", err)
			}
			if err := sendData(ctx, s, data, encoding, timeout); err != nil {
				fail("%v", err)
			}
			return
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			stdinData, err := io.ReadAll(os.Stdin)
			if err != nil {
				fail("reading from stdin: %v", err)
			}
			data, err := enc.encode(strings.TrimRight(string(stdinData), "\r\n"))
			if err != nil {
				fail("invalid hex data: %v", err)
			}
			if err := sendData(ctx, s, data, encoding, timeout); err != nil {
				fail("%v", err)
			}
			return
		}

		if err := sendInteractive(ctx, s, enc, encoding, timeout); err != nil {
			fail("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout for sending data")
	sendCmd.Flags().String("encoding", "utf8", "Text encoding of the data")
}

// payloadEncoder turns user input into the bytes to send.
type payloadEncoder struct {
	hex     bool
	newline bool
}

func (e payloadEncoder) encode(input string) (string, error) {
	if e.hex {
		data, err := parseHexString(input)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if e.newline {
		input += "\n"
	}
	return input, nil
}

// parseHexString accepts "48656c6c6f", "48 65 6c" and 0x-prefixed bytes.
func parseHexString(hexStr string) ([]byte, error) {
	hexStr = strings.ReplaceAll(hexStr, " ", "")
	hexStr = strings.ReplaceAll(hexStr, "0x", "")
	hexStr = strings.ReplaceAll(hexStr, "0X", "")

	if hexStr == "" {
		return nil, fmt.Errorf("empty input")
	}
	if len(hexStr)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	return hex.DecodeString(hexStr)
}

func sendData(ctx context.Context, s *serialport.Session, data, encoding string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fmt.Printf("%s Sending %d bytes...\n", infoStyle.Render("📤"), len(data))

	result := make(chan error, 1)
	s.WriteString(data, encoding, func(info transport.SendInfo, err error) {
		if err == nil && info.Error != "" {
			err = fmt.Errorf("send failed: %s", info.Error)
		}
		result <- err
	})

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("%s failed to send data: %w", errorStyle.Render("✗"), err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%s failed to send data: %w", errorStyle.Render("✗"), ctx.Err())
	}

	fmt.Printf("%s Successfully sent %d bytes\n", successStyle.Render("✓"), len(data))
	fmt.Printf("%s Data: %s\n", infoStyle.Render("📋"), preview(data, 50))
	return nil
}

// preview shortens data to n bytes and masks non-printable characters.
func preview(data string, n int) string {
	if len(data) > n {
		data = data[:n] + "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, data)
}

func sendInteractive(ctx context.Context, s *serialport.Session, enc payloadEncoder, encoding string, timeout time.Duration) error {
	prompt := "send> "
	if enc.hex {
		prompt = "send(hex)> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          infoStyle.Render(prompt),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		data, err := enc.encode(line)
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "%s invalid hex data: %v\n", errorStyle.Render("✗"), err)
			continue
		}
		if err := sendData(ctx, s, data, encoding, timeout); err != nil {
			fmt.Fprintln(rl.Stderr(), err)
			if !s.IsOpen() {
				return serialport.ErrNotOpen
			}
		}
	}
}
