// Package dialscmder provides the root dials command.
package dialscmder

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	versioncmder "github.com/papercomputeco/dials/cmd/version"
	"github.com/papercomputeco/dials/pkg/config"
	"github.com/papercomputeco/dials/pkg/logger"
	"github.com/papercomputeco/dials/pkg/sampling"
	"github.com/papercomputeco/dials/proxy"
)

type dialsCommander struct {
	host       string
	port       int
	upstream   string
	configPath string

	temperature float64
	topP        float64
	topK        int

	cliOverrides sampling.Overrides
	debug        bool
	logger       *zap.Logger
}

const dialsLongDesc string = `Run the dials sampling proxy.

The proxy intercepts chat-completion requests on their way to the upstream
API, forces the configured sampling parameters (temperature, top_p, top_k)
into the request body, and relays everything else - streamed responses
included - untouched.

CLI flags override config-file values; a config-file null means "no opinion".

Point your client at the proxy, e.g.:
  ANTHROPIC_BASE_URL=http://127.0.0.1:8080 claude`

const dialsShortDesc string = "Run the dials sampling proxy"

func NewDialsCmd() *cobra.Command {
	cmder := &dialsCommander{}

	cmd := &cobra.Command{
		Use:   "dials",
		Short: dialsShortDesc,
		Long:  dialsLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			// Only flags the user actually passed become CLI opinions;
			// cobra's flag defaults must stay "unset".
			if cmd.Flags().Changed("temperature") {
				cmder.cliOverrides.Temperature = sampling.Set(cmder.temperature)
			}
			if cmd.Flags().Changed("top-p") {
				cmder.cliOverrides.TopP = sampling.Set(cmder.topP)
			}
			if cmd.Flags().Changed("top-k") {
				cmder.cliOverrides.TopK = sampling.Set(cmder.topK)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	cmd.Flags().Float64VarP(&cmder.temperature, "temperature", "t", 0, "Temperature override (0.0-1.0)")
	cmd.Flags().Float64VarP(&cmder.topP, "top-p", "p", 0, "Top-p / nucleus sampling override (0.0-1.0)")
	cmd.Flags().IntVarP(&cmder.topK, "top-k", "k", 0, "Top-k sampling override (>= 1)")
	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to JSON sampling config file")
	cmd.Flags().StringVar(&cmder.host, "host", config.DefaultHost, "Host to bind to")
	cmd.Flags().IntVar(&cmder.port, "port", config.DefaultPort, "Port to listen on")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", config.DefaultUpstream, "Upstream API origin")

	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

func (c *dialsCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	var fileOverrides sampling.Overrides
	if c.configPath != "" {
		var err error
		fileOverrides, err = config.Load(c.configPath)
		if err != nil {
			return fmt.Errorf("loading sampling config: %w", err)
		}
		c.logger.Info("loaded sampling config",
			zap.String("path", c.configPath),
			zap.String("overrides", fileOverrides.String()),
		)
	}

	resolved := sampling.Resolve(c.cliOverrides, fileOverrides)

	p, err := proxy.New(proxy.Config{
		ListenAddr:  net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		UpstreamURL: c.upstream,
		Overrides:   resolved,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("sampling overrides resolved", zap.String("overrides", resolved.String()))
	c.logger.Info("point your client at the proxy",
		zap.String("base_url", fmt.Sprintf("http://%s:%d", c.host, c.port)),
	)

	return p.Run()
}
