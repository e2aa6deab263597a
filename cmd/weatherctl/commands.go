package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/cache"
	"github.com/kjstillabower/route-weather-service/internal/conditions"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/route"
	"github.com/kjstillabower/route-weather-service/internal/service"
	"github.com/kjstillabower/route-weather-service/internal/validation"
)

type routeEvaluator interface {
	EvaluateCities(ctx context.Context, r route.CityRoute, days, dayIndex int) ([]route.PointVerdict, error)
}

// services are the collaborators a command needs. close releases them.
type services struct {
	cache      cache.Cache
	resolver   route.Resolver
	forecaster route.Forecaster
	planner    routeEvaluator
	logger     *zap.Logger
	close      func() error
}

type loaderFunc func(logLevel string) (*services, error)

type rootOptions struct {
	load     loaderFunc
	logLevel string
	json     bool
	lang     string
}

func newRootCmd(load loaderFunc) *cobra.Command {
	opts := &rootOptions{load: load}
	root := &cobra.Command{
		Use:           "weatherctl",
		Short:         "Route weather administration tool",
		Long:          `Inspect geocoding and forecasts, evaluate routes and maintain the cache using the service configuration from config/{ENV_NAME}.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (defaults to the configured level)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Print JSON instead of a table")
	root.PersistentFlags().StringVar(&opts.lang, "lang", conditions.LangRU, "Verdict language (ru, en)")

	root.AddCommand(
		newFlushCacheCmd(opts),
		newResolveCmd(opts),
		newForecastCmd(opts),
		newClassifyCmd(opts),
		newRouteCmd(opts),
	)
	return root
}

// run loads services, scopes the logger into ctx and calls fn.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	s, err := o.load(o.logLevel)
	if err != nil {
		return err
	}
	defer func() {
		if s.close != nil {
			_ = s.close()
		}
	}()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.logger != nil {
		ctx = observability.WithLogger(ctx, s.logger)
	}
	return fn(ctx, s)
}

func (o *rootOptions) printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlushCacheCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-cache",
		Short: "Remove every cached entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *services) error {
				if err := service.FlushCache(ctx, s.cache); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache flushed")
				return nil
			})
		},
	}
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve CITY",
		Short: "Geocode a city name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			city, err := validation.ValidateCity(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, s *services) error {
				coords, err := s.resolver.Resolve(ctx, city)
				if err != nil {
					return err
				}
				if opts.json {
					return opts.printJSON(cmd.OutOrStdout(), map[string]interface{}{"city": city, "coordinates": coords})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", city, coords.Key())
				return nil
			})
		},
	}
}

func newForecastCmd(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "forecast CITY",
		Short: "Show the daily forecast and verdicts for a city",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			city, err := validation.ValidateCity(args[0])
			if err != nil {
				return err
			}
			if days < 1 || days > 5 {
				return fmt.Errorf("--days must be between 1 and 5, got %d", days)
			}
			return opts.run(cmd, func(ctx context.Context, s *services) error {
				coords, err := s.resolver.Resolve(ctx, city)
				if err != nil {
					return err
				}
				bundle, err := s.forecaster.Forecast(ctx, coords, days)
				if err != nil {
					return err
				}
				reports := conditions.SummarizeAll(bundle)
				if opts.json {
					return opts.printJSON(cmd.OutOrStdout(), reports)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tMAX °C\tMIN °C\tWIND KM/H\tPRECIP %\tCONDITIONS\tVERDICT")
				for _, r := range reports {
					fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\t%.0f\t%s\t%s\n",
						r.Date.Format("02.01.2006"), r.MaxTempC, r.MinTempC, r.WindKPH,
						r.PrecipitationProbability, conditions.TranslatePhrase(r.IconPhrase),
						conditions.Label(r.Verdict, opts.lang))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 1, "Forecast length in days (1-5)")
	return cmd
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var (
		temp, wind, precip float64
		intensity          string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify weather values without calling any provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := conditions.Classify(temp, wind, precip, intensity)
			if opts.json {
				return opts.printJSON(cmd.OutOrStdout(), map[string]string{"verdict": string(v)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), conditions.Label(v, opts.lang))
			return nil
		},
	}
	cmd.Flags().Float64Var(&temp, "temp", 20, "Maximum temperature, °C")
	cmd.Flags().Float64Var(&wind, "wind", 0, "Wind speed, km/h")
	cmd.Flags().Float64Var(&precip, "precip", 0, "Precipitation probability, %")
	cmd.Flags().StringVar(&intensity, "intensity", "", "Precipitation intensity (Light, Moderate, Heavy)")
	return cmd
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var days, dayIndex int
	cmd := &cobra.Command{
		Use:   "route START END [WAYPOINT...]",
		Short: "Evaluate weather along a route of cities",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if _, err := validation.ValidateCity(name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			r := route.CityRoute{Start: args[0], End: args[1], Waypoints: args[2:]}
			return opts.run(cmd, func(ctx context.Context, s *services) error {
				results, err := s.planner.EvaluateCities(ctx, r, days, dayIndex)
				if err != nil {
					return err
				}
				overall := route.Overall(results)
				if opts.json {
					return opts.printJSON(cmd.OutOrStdout(), map[string]interface{}{
						"points":  results,
						"overall": overall,
					})
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tPOINT\tCOORDINATES\tCONDITIONS\tVERDICT")
				for i, res := range results {
					day := res.Selected(dayIndex)
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, res.Point.Label(), res.Point.Coordinates.Key(),
						conditions.TranslatePhrase(day.IconPhrase), conditions.Label(res.Verdict, opts.lang))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "overall: %s\n", strings.ToUpper(conditions.Label(overall, opts.lang)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 1, "Forecast length in days (1-5)")
	cmd.Flags().IntVar(&dayIndex, "day-index", 0, "Day the verdict is taken from (0-based)")
	return cmd
}
