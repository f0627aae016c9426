// Command floorctl drives the floor from a terminal: list tables and orders,
// open and close tables, mark items delivered. Changes made while the API is
// unreachable are kept in a local outbox file and sent by `floorctl flush`.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/client"
	"github.com/mesa-digital/api/internal/logging"
)

const usage = `usage: floorctl [flags] <command> [args]

commands:
  tables                          list tables
  orders [tableId]                list open orders
  open <number>                   occupy a table
  status <tableId> <STATUS>       overwrite a table status
  item <orderId> <itemId> <STATUS>  mark an item DELIVERED or PENDING
  order <tableId> <productId>:<qty> [...]  place an order from the menu
  close <tableId> [paymentMethod] settle and free a table
  bill <tableId>                  show the open tab
  flush                           send queued changes

flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "floorctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("floorctl", flag.ContinueOnError)
	apiURL := fs.String("api", envOr("MESA_API", "http://localhost:3001"), "API base URL")
	user := fs.String("user", os.Getenv("MESA_USER"), "staff username")
	password := fs.String("password", os.Getenv("MESA_PASSWORD"), "staff password")
	outboxPath := fs.String("outbox", defaultOutboxPath(), "file holding queued changes")
	verbose := fs.Bool("v", false, "log requests and queue activity")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.Setup(logging.Options{Level: level, Stderr: true})
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.New(client.Config{BaseURL: *apiURL})
	if err != nil {
		return err
	}
	if *user != "" {
		if _, err := c.Login(ctx, *user, *password, ""); err != nil {
			if !client.Retryable(err) {
				return fmt.Errorf("login: %w", err)
			}
			// Offline: keep going without a session so changes can be queued.
			fmt.Fprintf(os.Stderr, "warning: login: %v (continuing offline)\n", err)
		}
	}

	outbox := client.NewOutbox(nil)
	if err := loadOutbox(*outboxPath, outbox); err != nil {
		return err
	}
	defer func() {
		if err := saveOutbox(*outboxPath, outbox); err != nil {
			zap.L().Error("save outbox", zap.Error(err))
		}
	}()

	store := client.NewStore(c, outbox)
	if err := store.Sync(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (working from local state)\n", err)
	}

	cmd := &command{ctx: ctx, store: store, client: c, out: out}
	return cmd.dispatch(fs.Arg(0), fs.Args()[1:])
}

type command struct {
	ctx    context.Context
	store  *client.Store
	client *client.Client
	out    io.Writer
}

func (c *command) dispatch(name string, args []string) error {
	switch name {
	case "tables":
		return c.tables()
	case "orders":
		return c.orders(args)
	case "open":
		return c.open(args)
	case "status":
		return c.status(args)
	case "item":
		return c.item(args)
	case "order":
		return c.order(args)
	case "close":
		return c.close(args)
	case "bill":
		return c.bill(args)
	case "flush":
		return c.flush()
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) tables() error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tSTATUS\t")
	for _, t := range c.store.Tables() {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", t.ID, t.Number, t.Status, pendingMark(t.Pending))
	}
	return tw.Flush()
}

func (c *command) orders(args []string) error {
	var tableID int64
	if len(args) > 0 {
		id, err := parseID(args[0], "table id")
		if err != nil {
			return err
		}
		tableID = id
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tTABLE\tSTATUS\tTOTAL\tITEM\tQTY\tITEM STATUS\t")
	for _, o := range c.store.Orders() {
		if (tableID != 0 && o.TableID != tableID) || o.Status == "PAID" {
			continue
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t\t\t\t%s\n", o.ID, o.TableID, o.Status, o.Total.StringFixed(2), pendingMark(o.Pending))
		for _, it := range o.Items {
			fmt.Fprintf(tw, "\t\t\t\t%d %s\t%d\t%s\t\n", it.ID, it.Name, it.Quantity, it.Status)
		}
	}
	return tw.Flush()
}

func (c *command) open(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: open <number>")
	}
	n, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid table number %q", args[0])
	}
	t, err := c.store.OpenTable(c.ctx, int32(n))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "table %d (id %d) is %s\n", t.Number, t.ID, t.Status)
	return nil
}

func (c *command) status(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: status <tableId> <STATUS>")
	}
	id, err := parseID(args[0], "table id")
	if err != nil {
		return err
	}
	return c.report(c.store.SetTableStatus(c.ctx, id, strings.ToUpper(args[1])))
}

func (c *command) item(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: item <orderId> <itemId> <STATUS>")
	}
	orderID, err := parseID(args[0], "order id")
	if err != nil {
		return err
	}
	itemID, err := parseID(args[1], "item id")
	if err != nil {
		return err
	}
	if err := c.report(c.store.SetItemStatus(c.ctx, orderID, itemID, strings.ToUpper(args[2]))); err != nil {
		return err
	}
	if o, ok := c.store.Order(orderID); ok {
		fmt.Fprintf(c.out, "order %d is %s\n", o.ID, o.Status)
	}
	return nil
}

func (c *command) order(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: order <tableId> <productId>:<qty> [...]")
	}
	tableID, err := parseID(args[0], "table id")
	if err != nil {
		return err
	}

	products := make(map[int64]client.Product)
	for _, p := range c.store.Products() {
		products[p.ID] = p
	}

	var items []client.NewOrderItem
	for _, arg := range args[1:] {
		idStr, qtyStr, found := strings.Cut(arg, ":")
		if !found {
			qtyStr = "1"
		}
		pid, err := parseID(idStr, "product id")
		if err != nil {
			return err
		}
		qty, err := strconv.ParseInt(qtyStr, 10, 32)
		if err != nil || qty <= 0 {
			return fmt.Errorf("invalid quantity in %q", arg)
		}
		p, ok := products[pid]
		if !ok {
			return fmt.Errorf("unknown product %d", pid)
		}
		items = append(items, client.NewOrderItem{
			ProductID: &p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  int32(qty),
		})
	}

	o, err := c.store.CreateOrder(c.ctx, tableID, items)
	if err := c.report(err); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "order %d total %s\n", o.ID, o.Total.StringFixed(2))
	return nil
}

func (c *command) close(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: close <tableId> [paymentMethod]")
	}
	id, err := parseID(args[0], "table id")
	if err != nil {
		return err
	}
	var method string
	if len(args) > 1 {
		method = strings.ToUpper(args[1])
	}
	return c.report(c.store.CloseTable(c.ctx, id, method))
}

func (c *command) bill(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: bill <tableId>")
	}
	id, err := parseID(args[0], "table id")
	if err != nil {
		return err
	}
	b, err := c.client.Bill(c.ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, o := range b.Orders {
		for _, it := range o.Items {
			line := it.Price.Mul(decimal.NewFromInt32(it.Quantity))
			fmt.Fprintf(tw, "%dx %s\t%s\t\n", it.Quantity, it.Name, line.StringFixed(2))
		}
	}
	fmt.Fprintf(tw, "subtotal\t%s\t\n", b.Subtotal.StringFixed(2))
	fmt.Fprintf(tw, "service %s%%\t%s\t\n", b.ServiceChargePercent.String(), b.ServiceCharge.StringFixed(2))
	fmt.Fprintf(tw, "total\t%s\t\n", b.Total.StringFixed(2))
	return tw.Flush()
}

func (c *command) flush() error {
	res, err := c.store.Flush(c.ctx)
	fmt.Fprintf(c.out, "sent %d, refused %d, still queued %d\n", res.Sent, len(res.Dropped), res.Remaining)
	for _, d := range res.Dropped {
		fmt.Fprintf(c.out, "  refused %s: %v\n", d.Op.Kind, d.Err)
	}
	return err
}

// report turns a queued change into a notice instead of a failure.
func (c *command) report(err error) error {
	if errors.Is(err, client.ErrQueued) {
		fmt.Fprintln(c.out, "API unreachable, change queued; run `floorctl flush` later")
		return nil
	}
	if err == nil {
		fmt.Fprintln(c.out, "ok")
	}
	return err
}

// --- Helpers ---

func pendingMark(pending bool) string {
	if pending {
		return "(queued)"
	}
	return ""
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultOutboxPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "floorctl-outbox.json"
	}
	return filepath.Join(dir, "mesa", "floorctl-outbox.json")
}

func loadOutbox(path string, o *client.Outbox) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read outbox: %w", err)
	}
	var ops []client.Op
	if err := json.Unmarshal(data, &ops); err != nil {
		return fmt.Errorf("parse outbox %s: %w", path, err)
	}
	o.Restore(ops)
	return nil
}

func saveOutbox(path string, o *client.Outbox) error {
	ops := o.Pending()
	if len(ops) == 0 {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ops, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
