// The pcapstats command parses a PCAP file and reports, per TCP
// connection, connection interruptions, fast-recovery phases and
// segment reordering.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/lennart-schulte/tcpdump-analyzer/report"
	"github.com/lennart-schulte/tcpdump-analyzer/tcp"
	"github.com/lennart-schulte/tcpdump-analyzer/tcpip"
)

var (
	jsonOutput = flag.Bool("json", false, "output in JSON format")
	timeLimit  = flag.Float64("timelimit", 0, "analyse only the first TIMELIMIT seconds of each connection (0 = analyse all)")
	netradar   = flag.Bool("netradar", false, "use Netradar ports to distinguish connections")
	interval   = flag.Float64("interval", tcp.DefaultTputInterval, "throughput sampling interval in seconds")
	minInterr  = flag.Float64("mininterr", tcp.DefaultConInterrTime, "minimum reported connection interruption in seconds")
	quiet      = flag.Bool("quiet", false, "decrease output verbosity")
	debug      = flag.Bool("debug", false, "debug message output")
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Parses PCAP files and extracts information from TCP connections\n"+
			"about connection interruptions, recovery phases and reordering.\n\n"+
			"Usage: %s [flags] <pcapfile>\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from env")

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	if *quiet {
		log.SetOutput(ioutil.Discard)
	}

	data, err := ioutil.ReadFile(flag.Arg(0))
	rtx.Must(err, "Could not read %s", flag.Arg(0))

	cfg := tcp.Config{
		TimeLimit:     *timeLimit,
		Netradar:      *netradar,
		Interval:      *interval,
		ConInterrTime: *minInterr,
		Debug:         *debug,
	}
	summary, err := tcpip.ProcessPackets(data, cfg)
	rtx.Must(err, "Could not process %s", flag.Arg(0))

	rows := report.Build(summary.Analyzer.Conns(), cfg)
	if *jsonOutput {
		rtx.Must(report.WriteJSON(os.Stdout, rows), "Could not encode report")
	} else {
		report.WriteText(os.Stdout, rows)
	}
}
