// Package process supervises a single external process.
//
// A Supervisor launches one process and hands its combined stdout/stderr
// back as a bounded channel of line chunks. A separate channel is closed
// exactly once when the process is gone, whether it exited on its own or was
// killed; the two causes are not distinguished.
//
//	sup := process.NewSupervisor("web", logger)
//	if err := sup.Launch("/usr/bin/server", "/port:8080"); err != nil {
//	    return err
//	}
//	go func() {
//	    for chunk := range sup.Output() {
//	        fmt.Println(chunk.Text)
//	    }
//	}()
//	<-sup.Exited()
//
// Kill is synchronous: it hard-kills the process (the whole process group on
// Unix) and returns once Exited has fired, or after the kill timeout.
package process
