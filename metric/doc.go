/*
Package metric is an in-process telemetry engine for the standard metric kinds: counters, gauges, histograms, meters and timers. Metrics live in an explicit Registry and are exported periodically by polling reporters to one or more sinks (see the sink sub-packages).

Producers never block on a reporter. Counters are plain atomics, histograms keep their exact aggregates (count, min, max, mean, variance) outside the bounded sample, and the sample itself is a Reservoir which only holds a short lock while a slot is chosen and written. Reporters read snapshots, so formatting and I/O never happens while a metric is locked.

The API consists of 4 main types of objects:

   * Metric   - one of *Counter, *Gauge, *Histogram, *Meter or *Timer. The set is closed.
   * Registry - the store mapping a Name to its Metric, with get-or-create semantics.
   * Renderer - implemented by sinks. One method per metric kind, called through Render.
   * Poller   - the background loop owned by every reporter, running at a fixed delay.

Registering

   reg := metric.NewRegistry()
   requests, err := reg.Meter(metric.NewName("http", "Server", "requests"), "requests")
   if err != nil {
       // the name is already taken by another kind
   }
   requests.Mark(1)

Timing

   timer, _ := reg.Timer(metric.NewName("db", "Store", "query"))
   defer timer.Start().Stop()

Reporting

   r := console.New(reg, os.Stdout)
   r.Start(10 * time.Second)
   defer r.Shutdown(5 * time.Second)

Meters and timers decay their 1, 5 and 15 minute rates every 5 seconds, catching up missed ticks when they are read. Histograms default to an exponentially decaying reservoir biased toward the last five minutes.
*/
package metric
