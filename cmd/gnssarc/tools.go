package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gnss-arcs/geodesy"
	"github.com/signalsfoundry/gnss-arcs/gpstime"
	"github.com/signalsfoundry/gnss-arcs/internal/pipeline"
)

var utcLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"}

func (a *app) gpstimeCommand() *cobra.Command {
	var leap int
	cmd := &cobra.Command{
		Use:   "gpstime",
		Short: "Convert between UTC and GPS week / second of week",
		Args:  cobra.ArbitraryArgs,
		RunE:  groupRunE,
	}
	cmd.PersistentFlags().IntVar(&leap, "leap-seconds", -1, "GPS-UTC leap seconds (mandatory)")

	checkLeap := func() error {
		if leap < 0 {
			return fmt.Errorf("%w: --leap-seconds is required", pipeline.ErrInvalidOption)
		}
		return nil
	}

	fromUTC := &cobra.Command{
		Use:   "from-utc TIME",
		Short: "Print the GPS week, second of week, day of week and second of day of a UTC instant",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkLeap(); err != nil {
				return err
			}
			t, err := parseUTC(args[0])
			if err != nil {
				return err
			}
			g, err := gpstime.FromTime(t, leap)
			if err != nil {
				return invalidOption("TIME", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "week=%d sow=%s dow=%d sod=%s\n",
				g.Week, formatSeconds(g.SecOfWeek), g.DayOfWeek, formatSeconds(g.SecOfDay))
			return nil
		},
	}

	toUTC := &cobra.Command{
		Use:   "to-utc WEEK SOW",
		Short: "Print the UTC instant of a GPS week and second of week",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkLeap(); err != nil {
				return err
			}
			week, err := strconv.Atoi(args[0])
			if err != nil {
				return invalidOption("WEEK", err)
			}
			sow, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return invalidOption("SOW", err)
			}
			t, err := gpstime.ToTime(week, sow, leap)
			if err != nil {
				return invalidOption("WEEK SOW", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339Nano))
			return nil
		},
	}

	cmd.AddCommand(fromUTC, toUTC)
	return cmd
}

func (a *app) coordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coord",
		Short: "Convert positions between geodetic, ECEF and UTM",
		Long: `coord converts WGS-84 positions. Negative values must follow "--" so they
are not read as flags, e.g. gnssarc coord to-ecef -- -33.9 18.4 5.`,
		Args: cobra.ArbitraryArgs,
		RunE: groupRunE,
	}

	toECEF := &cobra.Command{
		Use:   "to-ecef LAT LON HEIGHT",
		Short: "Geodetic (deg, deg, m) to ECEF (m)",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseTriple(args, "LAT", "LON", "HEIGHT")
			if err != nil {
				return err
			}
			if v[0] < -90 || v[0] > 90 {
				return invalidOption("LAT", geodesy.ErrInvalidLatitude)
			}
			p := geodesy.LLAToECEF(v[0], v[1], v[2])
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f %.4f %.4f\n", p.X, p.Y, p.Z)
			return nil
		},
	}

	toLLA := &cobra.Command{
		Use:   "to-lla X Y Z",
		Short: "ECEF (m) to geodetic (deg, deg, m)",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseTriple(args, "X", "Y", "Z")
			if err != nil {
				return err
			}
			lla, err := geodesy.ECEFToLLA(geodesy.Vec3{X: v[0], Y: v[1], Z: v[2]}, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.9f %.9f %.4f\n", lla.Lat, lla.Lon, lla.Alt)
			return nil
		},
	}

	toUTM := &cobra.Command{
		Use:   "to-utm LAT LON HEIGHT",
		Short: "Geodetic (deg, deg, m) to UTM zone, easting and northing (m)",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseTriple(args, "LAT", "LON", "HEIGHT")
			if err != nil {
				return err
			}
			u, err := geodesy.LLAToUTM(v[0], v[1], v[2])
			if err != nil {
				return invalidOption("LAT", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %.3f %.3f %.4f\n", u, u.Easting, u.Northing, u.Alt)
			return nil
		},
	}

	cmd.AddCommand(toECEF, toLLA, toUTM)
	return cmd
}

func parseUTC(s string) (time.Time, error) {
	for _, layout := range utcLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalidOption("TIME", fmt.Errorf("%q is not an RFC 3339 or \"YYYY-MM-DD hh:mm:ss\" instant", s))
}

func parseTriple(args []string, names ...string) ([3]float64, error) {
	var v [3]float64
	for i := range v {
		f, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return v, invalidOption(names[i], err)
		}
		v[i] = f
	}
	return v, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
