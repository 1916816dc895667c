package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/config"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/data"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/engine"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

func newBuildCommand(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Deploy the configured topology and print its layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := opts.deployed(cmd)
			if err != nil {
				return err
			}
			net := eng.Network()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(data.LayerRows(net.Layers))
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LAYER\tKIND\tMULTIPLIER\tINPUTS\tUNITS")
			for i, layer := range net.Layers {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", i, layer.Kind, layer.Multiplier, len(layer.Inputs), len(layer.Nodes))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d units, %d entry units, builder %s\n",
				net.UnitCount(), len(net.Entry()), eng.Builder().Address().Hex())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON row per unit")
	return cmd
}

func newSimulateCommand(opts *options) *cobra.Command {
	var (
		amount string
		from   string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send value into the network entry and report where it landed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := ledger.ParseAmount(amount)
			if err != nil {
				return err
			}
			eng, err := opts.deployed(cmd)
			if err != nil {
				return err
			}
			sender, err := senderAddress(eng, from)
			if err != nil {
				return err
			}

			receipt, sendErr := eng.SendToEntry(cmd.Context(), sender, value)
			if receipt == nil {
				return sendErr
			}
			printReceipt(cmd.OutOrStdout(), eng, receipt, sendErr)
			return sendErr
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "1ether", "value to send, in wei or with a gwei/ether suffix")
	cmd.Flags().StringVar(&from, "from", "", "sending account (defaults to the network owner)")
	return cmd
}

func newExportCommand(opts *options) *cobra.Command {
	var (
		dir    string
		amount string
		count  int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the deployed layers and simulated receipts as Arrow IPC streams",
		Long: `export deploys the configured topology, optionally runs a number of
simulated transfers through it, and writes layers.arrow and receipts.arrow
into the target directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := ledger.ParseAmount(amount)
			if err != nil {
				return err
			}
			eng, err := opts.deployed(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}

			converter := data.NewConverter()
			writer := data.NewIPCWriter()

			net := eng.Network()
			if net.UnitCount() == 0 {
				return fmt.Errorf("nothing to export: no routing units were deployed: %w", data.ErrEmptyBatch)
			}
			layers, err := converter.LayersToRecord(net.Layers)
			if err != nil {
				return err
			}
			defer layers.Release()
			if err := writeRecordFile(writer, filepath.Join(dir, "layers.arrow"), layers); err != nil {
				return err
			}

			if count < 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d layers to %s\n", len(net.Layers), dir)
				return nil
			}

			if len(net.Entry()) == 0 {
				return fmt.Errorf("cannot simulate transfers: %w", engine.ErrNoEntry)
			}
			entry := net.Entry()[0]
			rows := make([]data.ReceiptRow, 0, count)
			for i := 0; i < count; i++ {
				req := data.TransferRow{From: eng.Owner(), To: entry, Amount: value}
				receipt, sendErr := eng.Send(cmd.Context(), req.From, req.To, req.Amount)
				rows = append(rows, data.ReceiptRowFrom(req, receipt, sendErr))
			}

			receipts, err := converter.ReceiptsToRecord(rows)
			if err != nil {
				return err
			}
			defer receipts.Release()
			if err := writeRecordFile(writer, filepath.Join(dir, "receipts.arrow"), receipts); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d layers and %d receipts to %s\n",
				len(net.Layers), len(rows), dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&amount, "amount", "1ether", "value of each simulated transfer")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of simulated transfers to record")
	return cmd
}

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Deploy the topology and serve transfers until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := opts.deployed(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, eng, cmd.OutOrStdout())
		},
	}
}

func newConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newVersionCommand(name, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", name, version)
		},
	}
}

// serve starts eng and blocks until ctx is done.
func serve(ctx context.Context, eng *engine.Engine, out io.Writer) error {
	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	st := eng.Status()
	fmt.Fprintf(out, "routernet serving %d units", st.Units)
	if st.ServerAddr != "" {
		fmt.Fprintf(out, ", arrow on %s", st.ServerAddr)
	}
	if st.GatewayAddr != "" {
		fmt.Fprintf(out, ", gateway on %s", st.GatewayAddr)
	}
	if st.MetricsAddr != "" {
		fmt.Fprintf(out, ", metrics on %s", st.MetricsAddr)
	}
	fmt.Fprintln(out)

	<-ctx.Done()
	fmt.Fprintln(out, "shutting down")
	return nil
}

func senderAddress(eng *engine.Engine, from string) (common.Address, error) {
	if from == "" {
		return eng.Owner(), nil
	}
	return config.ParseAddress(from)
}

func printReceipt(out io.Writer, eng *engine.Engine, receipt *ledger.Receipt, sendErr error) {
	fmt.Fprintf(out, "receipt %s: %s, %d legs, depth %d, %s ether from %s\n",
		receipt.ID, receipt.Status, len(receipt.Legs), receipt.MaxDepth(),
		ledger.FormatEther(receipt.Amount), receipt.From.Hex())
	if sendErr != nil {
		fmt.Fprintf(out, "error: %v\n", sendErr)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTPUT\tRECEIVED\tBALANCE")
	for _, addr := range eng.Network().Outputs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", addr.Hex(),
			ledger.FormatEther(receipt.Received(addr)),
			ledger.FormatEther(eng.Ledger().BalanceOf(addr)))
	}
	tw.Flush()
}

func writeRecordFile(writer *data.IPCWriter, path string, record arrow.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writer.WriteStream(f, record); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
