package util

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"sync"
	"time"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Writer buffers output from worker goroutines in a strings.Builder. When Flush or Close is
// called the buffer is emptied and sent to the assigned output writer through channel c. The
// teacher used this to collect per-function assembly text from parallel code generation; here
// cmd/zkyulc/main.go uses one Writer to send the output of its single LowerObject call.
type Writer struct {
	sb strings.Builder
	c  chan string
}

// ---------------------
// ----- Constants -----
// ---------------------

var wc chan string     // Write channel used for receiving data from worker threads.
var cc chan error      // Close channel used by main thread to signal to end write operations.
var wg *sync.WaitGroup // used for synchronising when I/O finished writing to output.

// ---------------------
// ----- Functions -----
// ---------------------

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// WriteString writes a plain string to the Writer's buffer.
func (w *Writer) WriteString(s string) {
	w.sb.WriteString(s)
}

// Flush empties the Writer's buffer and sends the buffer data to the
// designated output writer over the Writer's channel.
func (w *Writer) Flush() {
	w.c <- w.sb.String()
	w.sb = strings.Builder{}
}

// Close flushes the Writer's buffer and then detaches the Writer from the channel (the channel
// itself stays open; it is closed by the listener started in ListenWrite).
func (w *Writer) Close() {
	w.Flush()
	w.c = nil
	wg.Done()
}

// NewWriter returns a new Writer to be used by worker threads to write strings concurrently to the output buffer.
// Must not be called before main thread has called ListenWrite.
func NewWriter() Writer {
	wg.Add(1)
	return Writer{
		sb: strings.Builder{},
		c:  wc,
	}
}

// ReadSource reads source code from file or stdin.
// If the Options structure holds a string for source the file will be opened and read.
// Else the function waits for a short period for input on stdin. If no input on stdin is
// provided the function returns an error.
func ReadSource(opt Options) (string, error) {
	if len(opt.Src) > 0 {
		// Read from file.
		b, err := ioutil.ReadFile(opt.Src)
		return string(b), err
	} else {
		// Read stdin.
		c := make(chan string)
		cerr := make(chan error)

		// Concurrently wait for input on stdin.
		go func(c chan string, cerr chan error) {
			defer close(c)
			defer close(cerr)
			reader := bufio.NewReader(os.Stdin)
			text, err := reader.ReadString(0)
			if err == nil || (errors.Is(err, io.EOF) && text != "") {
				c <- text
			} else {
				cerr <- err
			}
		}(c, cerr)

		// Select between input from stdin or timer expiry.
		select {
		case <-time.After(500 * time.Millisecond):
			return "", errors.New("expected input from stdin, got none")
		case s := <-c:
			return s, nil
		}
	}
}

// ListenWrite listens for worker thread outputs. The received data is written to either file
// if File pointer f is not nil or stdout if File pointer f is nil. The function loops until
// a termination signal is sent using the Close function.
func ListenWrite(opt Options, f *os.File, wgg *sync.WaitGroup) {
	wg = wgg
	if opt.Threads > 1 && opt.Target == TargetEval && !opt.TokenStream {
		// A single LLVM module's text can only be materialized once Finish() runs over the whole
		// module, so there is never more than one chunk of output in flight for TargetZkEVM; for
		// the eval backend the channel is buffered one chunk per thread plus one.
		wc = make(chan string, opt.Threads+1)
	} else {
		wc = make(chan string, 1)
	}
	cc = make(chan error, 1) // Make buffered to catch Close before listener is invoked.
	var w *bufio.Writer
	if f != nil {
		// Write output to file.
		w = bufio.NewWriter(f)
	} else {
		// Write output to stdout.
		w = bufio.NewWriter(os.Stdout)
	}

	// Listen for input and termination signal.
	go func(wc chan string, cc chan error) {
		defer close(wc)
		defer close(cc)
		for {
			select {
			case s := <-wc:
				if _, err := w.WriteString(s); err != nil {
					fmt.Println(err)
				}
				if err := w.Flush(); err != nil {
					fmt.Println(err)
				}
			case <-cc:
				return
			}
		}
	}(wc, cc)
}

// Close sends the termination signal to the writer listener.
func Close() {
	cc <- nil
}
