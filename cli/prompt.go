package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/vpn"
)

// terminalPrompt asks the user for credential values. Masked values are
// read without echo when input is a terminal.
type terminalPrompt struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

func newTerminalPrompt(in io.Reader, out io.Writer) *terminalPrompt {
	p := &terminalPrompt{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.isTerm = term.IsTerminal(p.fd)
	}
	return p
}

var _ vpn.CredentialProvider = (*terminalPrompt)(nil)

func (p *terminalPrompt) Credential(ctx context.Context, slot *vpn.UserInputSlot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	label := slot.Label()
	if label == "" {
		label = slot.VariableName()
	}
	fmt.Fprintf(p.out, "%s: ", label)

	if slot.Masked() && p.isTerm {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", slot.VariableName(), err)
		}
		return string(b), nil
	}

	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", fmt.Errorf("%w: input closed while reading %s", common.ErrNoCredential, slot.VariableName())
		}
		return "", fmt.Errorf("read %s: %w", slot.VariableName(), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
