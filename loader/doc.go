// Package loader drives the ESP8266 factory ROM loader over a serial
// channel: baud-rate synchronization, hardware reset strategies, register
// access, RAM and flash downloads, bulk flash reads through an in-RAM stub,
// and OTP MAC retrieval.
//
// # Usage
//
// A Client owns its serial channel. The usual sequence is open, connect,
// operate:
//
//	c := loader.New(loader.WithProgress(progressFunc))
//	if err := c.OpenComm("/dev/ttyUSB0", 115200, loader.ResetAuto.OpenConfig()); err != nil {
//	    return err
//	}
//	defer c.CloseComm()
//	if err := c.Connect(loader.ResetAuto); err != nil {
//	    return err
//	}
//	err := c.FlashWrite(vf, 0, parmVal, parmMask)
//
// All operations are serialized by construction: every command reads its own
// response before the next command is sent. A timed-out command leaves the
// link in an unknown state; callers must re-connect before issuing another
// command.
package loader
