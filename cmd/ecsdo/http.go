package main

import (
	"github.com/samsamfire/goethercat/pkg/gateway/http"
	"github.com/spf13/cobra"
)

func newHttpCmd(global *globalFlags) *cobra.Command {
	var listen string
	var station uint16
	var bufferSize int

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve an HTTP gateway to the slaves",
		Long: `Serve SDO reads and writes, AL state requests and identity reads over
HTTP. Requests are in the form /ethercat/1.0/<sequence>/<station>/<command>.`,
		Example: `  ecsdo http -c segment.ini --listen :8090
  curl localhost:8090/ethercat/1.0/1/0x1002/r/0x1008/0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openSegment(global)
			if err != nil {
				return err
			}
			defer n.Close()
			gw := http.NewGatewayServer(n, station, bufferSize, nil)
			return gw.ListenAndServe(listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8090", "Address to listen on")
	cmd.Flags().Uint16Var(&station, "station", 0, "Default station address")
	cmd.Flags().IntVar(&bufferSize, "buffer", 1024, "SDO upload buffer size")

	return cmd
}
