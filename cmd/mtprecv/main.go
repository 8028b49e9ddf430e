package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mtpsuite/gomtp"
	log "github.com/sirupsen/logrus"
)

// Demo binary: receives a file over one MTP socket. A single '$' message
// marks the end of the transfer.
func main() {
	filename := flag.String("f", "", "output file")
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

	file, err := os.OpenFile(*filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
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

	buf := make([]byte, mtp.MessageSize)
	total := 0
	for {
		n, err := client.RecvFrom(fd, buf)
		if errors.Is(err, mtp.ErrNoMsg) {
			log.Debug("no message yet, retrying")
			time.Sleep(time.Second)
			continue
		}
		if err != nil {
			fmt.Printf("recvfrom failed : %v\n", err)
			os.Exit(1)
		}
		if n == 1 && buf[0] == '$' {
			break
		}
		if _, err := file.Write(buf[:n]); err != nil {
			fmt.Printf("write failed : %v\n", err)
			os.Exit(1)
		}
		total += n
	}
	fmt.Printf("Received %v bytes into %v\n", total, *filename)
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
