// Package interactive provides the wmpctl command prompt.
package interactive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/wmp-protocol/wmp-go/pkg/discovery"
	"github.com/wmp-protocol/wmp-go/pkg/gateway"
	"github.com/wmp-protocol/wmp-go/pkg/unit"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// Console is the interactive command loop.
type Console struct {
	registry *gateway.Registry
	watcher  *Watcher
	logger   *slog.Logger
	rl       *readline.Instance

	// current is the selected gateway MAC; empty selects the only one.
	current string
}

// New creates the console.
func New(registry *gateway.Registry, watcher *Watcher, logger *slog.Logger) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wmp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{
		registry: registry,
		watcher:  watcher,
		logger:   logger,
		rl:       rl,
	}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the command loop. It returns when the user exits or ctx is
// cancelled.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "gateways", "ls":
			c.cmdGateways()

		case "use":
			c.cmdUse(args)

		case "status":
			c.cmdStatus()

		case "units":
			c.cmdUnits()

		case "on":
			c.cmdPower(args, true)

		case "off":
			c.cmdPower(args, false)

		case "mode":
			c.cmdMode(args)

		case "set":
			c.cmdSetpoint(args)

		case "fan":
			c.cmdFan(args)

		case "vane":
			c.cmdVane(args)

		case "refresh":
			c.cmdRefresh(args)

		case "name":
			c.cmdName(args)

		case "raw":
			c.cmdRaw(args)

		case "ping":
			c.cmdPing()

		case "discover":
			c.cmdDiscover(ctx, args)

		case "watch":
			c.cmdWatch(args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
WMP Console Commands:
  Gateways:
    gateways                  - List configured gateways
    use <mac>                 - Select the gateway commands act on
    status                    - Show the selected gateway's status
    units                     - Show unit state on the selected gateway

  Control:
    on <unit> / off <unit>    - Switch a unit on or off
    mode <unit> <mode>        - Set mode: auto, heat, dry, fan, cool
    set <unit> <temp>         - Set setpoint in degrees C (e.g. 21.5)
    fan <unit> <speed|up|down>- Set or step the fan speed
    vane <unit> <ud|lr> <pos> - Set or step a vane (up/down/left/right/<pos>)
    refresh [unit]            - Re-read state
    name <text>               - Rename the gateway

  Diagnostics:
    raw <line>                - Send a raw protocol line
    ping                      - Queue a keepalive
    discover [seconds]        - Run broadcast discovery
    watch <on|off>            - Mirror protocol traffic to the console
    quit                      - Exit`)
}

// selected returns the gateway commands act on.
func (c *Console) selected() (*gateway.Gateway, bool) {
	if c.current != "" {
		g, ok := c.registry.Gateway(c.current)
		if !ok {
			fmt.Fprintf(c.rl.Stdout(), "Selected gateway %s is gone; pick another with 'use'\n", c.current)
		}
		return g, ok
	}
	gws := c.registry.Gateways()
	if len(gws) == 1 {
		return gws[0], true
	}
	fmt.Fprintln(c.rl.Stdout(), "Several gateways configured; pick one with 'use <mac>'")
	return nil, false
}

func (c *Console) cmdGateways() {
	gws := c.registry.Gateways()
	if len(gws) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No gateways configured")
		return
	}
	for _, g := range gws {
		marker := " "
		if g.MAC() == c.current {
			marker = "*"
		}
		name := ""
		if id, ok := g.Identity(); ok {
			name = fmt.Sprintf("  %s (%s)", id.Name, id.Model)
		}
		fmt.Fprintf(c.rl.Stdout(), "%s %s  %s%s\n", marker, g.MAC(), g.Status(), name)
	}
}

func (c *Console) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: use <mac>")
		return
	}
	if _, ok := c.registry.Gateway(args[0]); !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown gateway: %s\n", args[0])
		return
	}
	c.current = wire.NormalizeMAC(args[0])
	fmt.Fprintf(c.rl.Stdout(), "Using gateway %s\n", c.current)
}

func (c *Console) cmdStatus() {
	g, ok := c.selected()
	if !ok {
		return
	}
	out := c.rl.Stdout()
	fmt.Fprintf(out, "Gateway:  %s\n", g.MAC())
	fmt.Fprintf(out, "Status:   %s", g.Status())
	if g.Failed() {
		fmt.Fprint(out, " (reconnects failing)")
	}
	fmt.Fprintln(out)
	if id, ok := g.Identity(); ok {
		fmt.Fprintf(out, "Model:    %s  fw %s\n", id.Model, id.Firmware)
		fmt.Fprintf(out, "Name:     %s\n", id.Name)
	}
	if rssi := g.RSSI(); rssi != 0 {
		fmt.Fprintf(out, "RSSI:     %d dBm\n", rssi)
	}
	for k, v := range g.Info() {
		fmt.Fprintf(out, "Info:     %s = %s\n", k, v)
	}
}

func (c *Console) cmdUnits() {
	g, ok := c.selected()
	if !ok {
		return
	}
	out := c.rl.Stdout()
	for _, id := range g.UnitIDs() {
		s, ok := g.Unit(id)
		if !ok {
			continue
		}
		power := "off"
		if s.Power {
			power = "on"
		}
		line := fmt.Sprintf("unit %d: %s mode=%s", id, power, strings.ToLower(s.Mode.String()))
		if s.HasSetpoint {
			line += fmt.Sprintf(" setpoint=%.1f°C", unit.ToCelsius(s.SetpointTenths))
		}
		if s.HasAmbient {
			line += fmt.Sprintf(" ambient=%.1f°C", unit.ToCelsius(s.AmbientTenths))
		}
		if s.FanSpeed != "" {
			line += " fan=" + strings.ToLower(s.FanSpeed)
		}
		if s.ErrStatus != "" && s.ErrStatus != "OK" {
			line += " error=" + s.ErrStatus
		}
		fmt.Fprintln(out, line)
	}
}

func (c *Console) cmdPower(args []string, on bool) {
	g, unitNo, ok := c.unitArg(args, 1)
	if !ok {
		return
	}
	c.report(g.SetPower(unitNo, on))
}

func (c *Console) cmdMode(args []string) {
	g, unitNo, ok := c.unitArg(args, 2)
	if !ok {
		return
	}
	m := unit.ParseMode(args[1])
	if m == unit.ModeUnknown {
		fmt.Fprintf(c.rl.Stdout(), "Unknown mode: %s\n", args[1])
		return
	}
	c.report(g.SetMode(unitNo, m))
}

func (c *Console) cmdSetpoint(args []string) {
	g, unitNo, ok := c.unitArg(args, 2)
	if !ok {
		return
	}
	celsius, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad temperature: %s\n", args[1])
		return
	}
	c.report(g.SetSetpoint(unitNo, unit.CelsiusToTenths(celsius)))
}

func (c *Console) cmdFan(args []string) {
	g, unitNo, ok := c.unitArg(args, 2)
	if !ok {
		return
	}
	switch strings.ToLower(args[1]) {
	case "up":
		c.report(g.FanSpeedUp(unitNo))
	case "down":
		c.report(g.FanSpeedDown(unitNo))
	default:
		c.report(g.SetFanSpeed(unitNo, args[1]))
	}
}

func (c *Console) cmdVane(args []string) {
	g, unitNo, ok := c.unitArg(args, 3)
	if !ok {
		return
	}
	axis := wire.FuncVaneUD
	if strings.EqualFold(args[1], "lr") {
		axis = wire.FuncVaneLR
	}
	switch strings.ToLower(args[2]) {
	case "up":
		c.report(g.VaneUp(unitNo))
	case "down":
		c.report(g.VaneDown(unitNo))
	case "left":
		c.report(g.VaneLeft(unitNo))
	case "right":
		c.report(g.VaneRight(unitNo))
	default:
		c.report(g.SetVane(unitNo, axis, args[2]))
	}
}

func (c *Console) cmdRefresh(args []string) {
	g, ok := c.selected()
	if !ok {
		return
	}
	if len(args) == 0 {
		c.report(g.RefreshAll())
		return
	}
	unitNo, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad unit number: %s\n", args[0])
		return
	}
	c.report(g.Refresh(unitNo))
}

func (c *Console) cmdName(args []string) {
	g, ok := c.selected()
	if !ok {
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: name <text>")
		return
	}
	c.report(g.SetDeviceName(strings.Join(args, " ")))
}

func (c *Console) cmdRaw(args []string) {
	g, ok := c.selected()
	if !ok {
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: raw <line>")
		return
	}
	c.report(g.SendRaw(strings.Join(args, " ")))
}

func (c *Console) cmdPing() {
	g, ok := c.selected()
	if !ok {
		return
	}
	c.report(g.Ping())
}

func (c *Console) cmdDiscover(ctx context.Context, args []string) {
	window := 10 * time.Second
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintf(c.rl.Stdout(), "Bad window: %s\n", args[0])
			return
		}
		window = time.Duration(secs) * time.Second
	}

	out := c.rl.Stdout()
	fmt.Fprintf(out, "Discovering for %s...\n", window)
	records, err := discovery.Broadcast(ctx, discovery.Config{
		Window: window,
		Logger: c.logger,
		OnRecord: func(rec wire.DiscoveryRecord) {
			fmt.Fprintf(out, "  %s  %s  %-15s  %s (%d units)\n",
				rec.MAC, rec.Model, rec.IP, rec.Name, rec.UnitCount)
			c.registry.HandleDiscovery(rec)
		},
	})
	if err != nil {
		fmt.Fprintf(out, "Discovery failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Found %d gateway(s)\n", len(records))
}

func (c *Console) cmdWatch(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: watch <on|off>")
		return
	}
	switch strings.ToLower(args[0]) {
	case "on":
		c.watcher.enable(c.rl.Stdout())
		fmt.Fprintln(c.rl.Stdout(), "Watching protocol traffic (watch off to stop)")
	case "off":
		c.watcher.disable()
		fmt.Fprintln(c.rl.Stdout(), "Watch disabled")
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: watch <on|off>")
	}
}

// unitArg resolves the selected gateway plus a leading unit-number
// argument, checking the argument count.
func (c *Console) unitArg(args []string, want int) (*gateway.Gateway, int, bool) {
	if len(args) < want {
		fmt.Fprintln(c.rl.Stdout(), "Missing arguments (type 'help' for usage)")
		return nil, 0, false
	}
	g, ok := c.selected()
	if !ok {
		return nil, 0, false
	}
	unitNo, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad unit number: %s\n", args[0])
		return nil, 0, false
	}
	return g, unitNo, true
}

func (c *Console) report(err error) {
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "OK")
}
