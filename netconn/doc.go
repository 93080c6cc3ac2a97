// Package netconn provides Connection, a thin synchronous client for raw TCP
// devices such as network receipt printers listening on port 9100.
//
// A Connection owns exactly one socket. Before every Write and Read it polls
// the socket for readiness; when the socket is not ready it tears the socket
// down, dials a fresh one and polls once more. A second failure is reported
// as a *ConnectionError by Write and swallowed by Read, which then returns an
// empty slice. There is no framing: bytes go to the device as given.
//
//	conn, err := netconn.Create("192.168.0.205:9100")
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//
//	if err := conn.Write([]byte("\x1b@hello\n")); err != nil {
//		return err
//	}
//
//	status := conn.Read()
//
// A Connection is not safe for concurrent use.
package netconn
