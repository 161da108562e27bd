package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permit-intel/internal/cluster"
	"github.com/sells-group/permit-intel/internal/config"
	"github.com/sells-group/permit-intel/internal/permit"
)

var clusterJSON bool

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster geocoded permits into development projects",
	Long:  "Runs density clustering over all geocoded permits, deduplicates per-parcel permits, tags corridors and land assemblies, and writes the resulting projects.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		params := clusterParams(cfg.Cluster)
		engine := cluster.NewEngine(permit.NewStore(pool), cluster.NewStore(pool), params)

		sum, err := engine.Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("cluster finished",
			zap.String("run_id", sum.RunID),
			zap.Int("permits", sum.Permits),
			zap.Int("projects", len(sum.Projects)),
		)

		if clusterJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sum.Projects)
		}
		return nil
	},
}

// clusterParams merges config overrides onto the default parameter set.
// Zero values keep the defaults.
func clusterParams(c config.ClusterConfig) cluster.Params {
	p := cluster.DefaultParams()
	if c.SpatialRadiusM > 0 {
		p.SpatialRadiusMeters = c.SpatialRadiusM
	}
	if c.TemporalWindowDays > 0 {
		p.TemporalWindowDays = c.TemporalWindowDays
	}
	if c.ExtendedWindowDays > 0 {
		p.ExtendedWindowDays = c.ExtendedWindowDays
	}
	if c.MegaprojectThreshold > 0 {
		p.MegaprojectThreshold = c.MegaprojectThreshold
	}
	if c.MinClusterSize > 0 {
		p.MinPoints = c.MinClusterSize
	}
	if c.AssemblyRadiusM > 0 {
		p.AssemblyRadiusMeters = c.AssemblyRadiusM
	}
	if c.CorridorProximityM > 0 {
		p.CorridorProximityMeters = c.CorridorProximityM
	}
	if len(c.StatusWeights) > 0 {
		p.StatusWeights = c.StatusWeights
	}
	return p
}

func init() {
	clusterCmd.Flags().BoolVar(&clusterJSON, "json", false, "print resulting projects as JSON")
	rootCmd.AddCommand(clusterCmd)
}
