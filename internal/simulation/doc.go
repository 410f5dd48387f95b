// Package simulation drives the organizational-resilience recurrence.
//
// Step is the pure tick function: given the engine, the shock policy, the
// current state and the control inputs for a tick, it returns the next state
// and the record to append. Session wraps Step with the bookkeeping of one
// run: the history log, the Running/Stopped state machine, and the sinks the
// loop pushes into. Driver is the single-threaded scheduler that fires ticks
// on a fixed interval and serialises resets and inspections between ticks.
//
// Usage:
//
//	factory := func() (*simulation.Session, error) {
//	    return simulation.NewSession(simulation.Options{
//	        Engine:   eng,
//	        Policy:   policy,
//	        Noise:    src,
//	        Inputs:   panel,
//	        MaxTicks: 100,
//	        Sinks:    simulation.Sinks{Chart: board, Status: board, Export: csvSink},
//	    })
//	}
//	d := simulation.NewDriver(factory, simulation.DriverOptions{Interval: 400 * time.Millisecond, ExitOnStop: true})
//	err := d.Run(ctx)
package simulation
