package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/fuzzrelay/internal/config"
)

// PCAPOptions shapes the synthetic conversation written by WritePCAP.
type PCAPOptions struct {
	ClientPort uint16
	ServerPort uint16
	Start      time.Time
}

func (o PCAPOptions) withDefaults() PCAPOptions {
	if o.ClientPort == 0 {
		o.ClientPort = 50000
	}
	if o.ServerPort == 0 {
		o.ServerPort = 10101
	}
	if o.Start.IsZero() {
		o.Start = time.Unix(0, 0).UTC()
	}
	return o
}

var (
	clientIP  = []byte{10, 0, 0, 1}
	serverIP  = []byte{10, 0, 0, 2}
	clientMAC = []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	serverMAC = []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// ExportPCAP writes the store's messages as a pcap file.
func (s *Store) ExportPCAP(path string, opts PCAPOptions) error {
	return WritePCAP(path, s.Messages(), opts)
}

// WritePCAP writes messages as one synthetic Ethernet/IPv4/TCP conversation.
// Server-to-client messages flow from the server port; every other message
// is written as client-to-server.
func WritePCAP(path string, messages []Message, opts PCAPOptions) error {
	opts = opts.withDefaults()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pcap: %w", err)
	}
	defer file.Close()

	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("write pcap header: %w", err)
	}

	clientSeq, serverSeq := uint32(1), uint32(1)
	for i, msg := range messages {
		fromServer := msg.Direction == config.DirectionServerToClient

		eth := &layers.Ethernet{
			SrcMAC:       clientMAC,
			DstMAC:       serverMAC,
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    clientIP,
			DstIP:    serverIP,
		}
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(opts.ClientPort),
			DstPort: layers.TCPPort(opts.ServerPort),
			ACK:     true,
			PSH:     true,
			Seq:     clientSeq,
			Ack:     serverSeq,
			Window:  65535,
		}
		if fromServer {
			eth.SrcMAC, eth.DstMAC = serverMAC, clientMAC
			ip.SrcIP, ip.DstIP = serverIP, clientIP
			tcp.SrcPort, tcp.DstPort = tcp.DstPort, tcp.SrcPort
			tcp.Seq, tcp.Ack = serverSeq, clientSeq
			serverSeq += uint32(len(msg.Payload))
		} else {
			clientSeq += uint32(len(msg.Payload))
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)

		buffer := gopacket.NewSerializeBuffer()
		serializeOpts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buffer, serializeOpts, eth, ip, tcp, gopacket.Payload(msg.Payload)); err != nil {
			return fmt.Errorf("serialize message %d: %w", i, err)
		}
		data := buffer.Bytes()
		if err := writer.WritePacket(gopacket.CaptureInfo{
			Timestamp:     opts.Start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}, data); err != nil {
			return fmt.Errorf("write packet %d: %w", i, err)
		}
	}
	return nil
}

// pcapngMagic is the section header block type that opens every pcapng file.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// ReadPCAPPayloads extracts non-empty TCP payloads from a pcap or pcapng file
// in capture order. port selects the server side of the conversation: with
// DirectionServerToClient only segments whose source port is port are kept,
// with DirectionClientToServer only those whose destination port is port.
// A zero port keeps every TCP payload.
func ReadPCAPPayloads(path string, port int, dir config.Direction) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer file.Close()

	source, linkType, err := openPacketSource(file)
	if err != nil {
		return nil, err
	}

	var payloads [][]byte
	packets := gopacket.NewPacketSource(source, linkType)
	for packet := range packets.Packets() {
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, _ := tcpLayer.(*layers.TCP)
		if len(tcp.Payload) == 0 {
			continue
		}
		if port != 0 && !matchesPort(tcp, uint16(port), dir) {
			continue
		}
		data := make([]byte, len(tcp.Payload))
		copy(data, tcp.Payload)
		payloads = append(payloads, data)
	}
	return payloads, nil
}

func matchesPort(tcp *layers.TCP, port uint16, dir config.Direction) bool {
	src, dst := uint16(tcp.SrcPort), uint16(tcp.DstPort)
	switch dir {
	case config.DirectionServerToClient:
		return src == port
	case config.DirectionClientToServer:
		return dst == port
	default:
		return src == port || dst == port
	}
}

func openPacketSource(r io.Reader) (gopacket.PacketDataSource, layers.LinkType, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, 0, fmt.Errorf("read pcap header: %w", err)
	}
	if bytes.Equal(head, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, 0, fmt.Errorf("open pcapng: %w", err)
		}
		return ng, ng.LinkType(), nil
	}
	reader, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, 0, fmt.Errorf("open pcap: %w", err)
	}
	return reader, reader.LinkType(), nil
}
