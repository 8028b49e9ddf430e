package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/mtpsuite/gomtp"
	log "github.com/sirupsen/logrus"
)

// Demo binary: transfers a file over one MTP socket, one MessageSize chunk
// per message, terminated by a single '$' message.
func main() {
	filename := flag.String("f", "", "file to send")
	localAddr := flag.String("a", "", "local address, defaults to the first interface address")
	localPort := flag.Int("p", -1, "local port")
	remoteAddr := flag.String("A", "", "remote address")
	remotePort := flag.Int("P", -1, "remote port")
	socketPath := flag.String("s", mtp.DefaultSocketPath, "daemon control socket")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if *filename == "" || *localPort < 0 || *remoteAddr == "" || *remotePort < 0 {
		flag.Usage()
		os.Exit(1)
	}
	if *localAddr == "" {
		*localAddr = firstInterfaceAddr()
	}

	file, err := os.Open(*filename)
	if err != nil {
		fmt.Printf("open failed : %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	client, err := mtp.Dial(*socketPath)
	if err != nil {
		fmt.Printf("could not reach daemon on %v : %v\n", *socketPath, err)
		os.Exit(1)
	}
	defer client.Disconnect()

	fd, err := client.Socket(0, mtp.SockMTP, 0)
	if err != nil {
		fmt.Printf("socket failed : %v\n", err)
		os.Exit(1)
	}
	defer client.Close(fd)
	fmt.Println("Socket created")

	if err := client.Bind(fd, *localAddr, *localPort, *remoteAddr, *remotePort); err != nil {
		fmt.Printf("bind failed : %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Bound to %v:%v -> %v:%v\n", *localAddr, *localPort, *remoteAddr, *remotePort)

	chunk := make([]byte, mtp.MessageSize)
	total := 0
	for {
		n, err := file.Read(chunk)
		if n > 0 {
			send(client, fd, chunk[:n], *remoteAddr, *remotePort)
			total += n
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("read failed : %v\n", err)
			os.Exit(1)
		}
	}
	// EOF marker
	send(client, fd, []byte("$"), *remoteAddr, *remotePort)
	fmt.Printf("Queued %v bytes, waiting for the daemon to drain the send buffer\n", total)

	// The deferred Close releases the entry when main returns; linger so
	// the daemon can finish retransmitting the tail of the buffer.
	time.Sleep(30 * time.Second)
}

// send enqueues one message, polling while the send buffer is full.
func send(client *mtp.Client, fd int, payload []byte, addr string, port int) {
	for {
		_, err := client.SendTo(fd, payload, addr, port)
		if errors.Is(err, mtp.ErrNoBufs) {
			log.Debug("send buffer full, retrying")
			time.Sleep(time.Second)
			continue
		}
		if err != nil {
			fmt.Printf("sendto failed : %v\n", err)
			os.Exit(1)
		}
		return
	}
}

func firstInterfaceAddr() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
