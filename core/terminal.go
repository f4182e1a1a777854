package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/encodeous/sospf/state"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// Operator is the set of operations the terminal drives, implemented by SospfRouter
type Operator interface {
	Attach(remote state.RouterDesc, weight int64) (int, error)
	Start() error
	Connect(remote state.RouterDesc, weight int64) (int, error)
	Disconnect(port int) error
	Detect(dst netip.Addr) (Path, error)
	Neighbours() ([]netip.Addr, error)
	Quit() error
	Lsd() (string, error)
	Routes() (string, error)
	Ports() (string, error)
}

const helpText = `commands:
  attach <process ip> <process port> <simulated ip> <weight>   add a link without contacting the neighbour
  start                                                        run the handshake on all attached links
  connect <process ip> <process port> <simulated ip> <weight>  add a link and run the handshake on it
  disconnect <port>                                            remove the link on a port
  detect <simulated ip>                                        print the shortest path to a router
  neighbors                                                    print all TWO_WAY neighbours
  lsd                                                          print the link-state database
  routes                                                       print the forward table
  ports                                                        print the port table
  quit                                                         notify neighbours and exit
`

// RunTerminal reads commands from in until quit, EOF or ctx is cancelled
func RunTerminal(ctx context.Context, op Operator, in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, ">> ")
		if !sc.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if Execute(op, sc.Text(), out) {
			return
		}
	}
}

// Execute runs one command line, reporting results and user errors to out. It returns true once the operator quits.
func Execute(op Operator, line string, out io.Writer) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false
	}
	quit, err := execute(op, args, out)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
	}
	return quit
}

func execute(op Operator, args []string, out io.Writer) (bool, error) {
	switch args[0] {
	case "attach", "connect":
		if len(args) != 5 {
			return false, fmt.Errorf("%w: %s <process ip> <process port> <simulated ip> <weight>", ErrUsage, args[0])
		}
		remote, weight, err := parseLink(args[1:])
		if err != nil {
			return false, err
		}
		var port int
		if args[0] == "attach" {
			port, err = op.Attach(remote, weight)
		} else {
			port, err = op.Connect(remote, weight)
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s %s on port %d\n", args[0], remote.Addr, port)
	case "start":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: start", ErrUsage)
		}
		if err := op.Start(); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "started")
	case "disconnect":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: disconnect <port>", ErrUsage)
		}
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return false, fmt.Errorf("%w: %s", ErrInvalidPort, args[1])
		}
		if err = op.Disconnect(port); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "disconnected port %d\n", port)
	case "detect":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: detect <simulated ip>", ErrUsage)
		}
		dst, err := state.AddrValidator(args[1])
		if err != nil {
			return false, err
		}
		path, err := op.Detect(dst)
		if errors.Is(err, ErrNotFound) {
			fmt.Fprintln(out, ErrNotFound.Error())
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, path.String())
	case "neighbors", "neighbours":
		neighs, err := op.Neighbours()
		if errors.Is(err, ErrNoNeighbours) {
			fmt.Fprintln(out, ErrNoNeighbours.Error())
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for i, n := range neighs {
			fmt.Fprintf(out, "IP Address of the neighbor%d: %s\n", i+1, n)
		}
	case "lsd", "routes", "ports":
		var dump string
		var err error
		switch args[0] {
		case "lsd":
			dump, err = op.Lsd()
		case "routes":
			dump, err = op.Routes()
		default:
			dump, err = op.Ports()
		}
		if err != nil {
			return false, err
		}
		fmt.Fprint(out, dump)
	case "quit":
		return true, op.Quit()
	case "help":
		fmt.Fprint(out, helpText)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	return false, nil
}

func parseLink(args []string) (state.RouterDesc, int64, error) {
	port, err := state.PortValidator(args[1])
	if err != nil {
		return state.RouterDesc{}, 0, err
	}
	addr, err := state.AddrValidator(args[2])
	if err != nil {
		return state.RouterDesc{}, 0, err
	}
	weight, err := state.WeightValidator(args[3])
	if err != nil {
		return state.RouterDesc{}, 0, err
	}
	return state.RouterDesc{
		Addr:        addr,
		ProcessAddr: args[0],
		ProcessPort: port,
	}, weight, nil
}
