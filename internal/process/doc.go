// Package process supervises the external transcoding tool.
//
// Process wraps os/exec for a single child:
//   - Own process group, so signals reach helpers the tool spawns
//   - Stop signal (SIGINT by default) with a graceful timeout, then SIGKILL
//   - Stderr streaming split on '\r' and '\n'
//
// Supervisor drives one Process at a time through idle, running and
// terminating, and publishes Started, DiagnosticLine, Progress and exactly
// one terminal event (Completed, Failed or Terminated) per run.
//
// Example usage:
//
//	bus := events.New()
//	sup, err := process.NewSupervisor(bus, &process.Options{Executable: "ffmpeg"})
//	if err != nil {
//	    return err
//	}
//	events.On(bus, func(e events.Progress) { render(e.Sample) })
//
//	m := command.New()
//	m.AddInput("in.mp4")
//	m.AddOutput("out.mp4")
//	if _, err := sup.Execute(m); err != nil {
//	    return err
//	}
//	defer sup.Terminate()
//	return sup.Wait(ctx)
package process
