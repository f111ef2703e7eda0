package pionengine

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/webrtckit/pkg/bridge"
)

// CreateDataChannel opens a channel under the caller's tag.
func (e *Engine) CreateDataChannel(_ context.Context, tag bridge.Tag, channel bridge.Tag, label string, init bridge.DataChannelInit) (bridge.DataChannelInfo, error) {
	p, err := e.peer(tag)
	if err != nil {
		return bridge.DataChannelInfo{}, rejection("create data channel", err)
	}
	dc, err := p.conn.CreateDataChannel(label, toDataChannelInit(init))
	if err != nil {
		return bridge.DataChannelInfo{}, rejection("create data channel", err)
	}
	e.watchChannel(channel, dc)
	return channelInfo(channel, dc), nil
}

func (e *Engine) watchChannel(tag bridge.Tag, dc *webrtc.DataChannel) {
	e.mu.Lock()
	e.channels[tag] = dc
	e.mu.Unlock()

	dc.OnOpen(func() {
		e.bus.Publish(&bridge.DataChannelStateChanged{Tag: tag, State: "open"})
	})
	dc.OnClose(func() {
		e.mu.Lock()
		delete(e.channels, tag)
		e.mu.Unlock()
		e.bus.Publish(&bridge.DataChannelStateChanged{Tag: tag, State: "closed"})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		buf := bridge.BinaryBuffer(msg.Data)
		if msg.IsString {
			buf = bridge.TextBuffer(string(msg.Data))
		}
		e.bus.Publish(&bridge.DataChannelMessage{Tag: tag, DataBuffer: buf})
	})
	dc.SetBufferedAmountLowThreshold(0)
	dc.OnBufferedAmountLow(func() {
		e.bus.Publish(&bridge.DataChannelBufferedAmountChanged{Tag: tag, Amount: dc.BufferedAmount()})
	})
}

func channelInfo(tag bridge.Tag, dc *webrtc.DataChannel) bridge.DataChannelInfo {
	return bridge.DataChannelInfo{
		Tag:               tag,
		ID:                dc.ID(),
		Label:             dc.Label(),
		Protocol:          dc.Protocol(),
		Ordered:           dc.Ordered(),
		Negotiated:        dc.Negotiated(),
		MaxPacketLifeTime: dc.MaxPacketLifeTime(),
		MaxRetransmits:    dc.MaxRetransmits(),
		ReadyState:        dc.ReadyState().String(),
		BufferedAmount:    dc.BufferedAmount(),
	}
}

func (e *Engine) channel(tag bridge.Tag) (*webrtc.DataChannel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dc, ok := e.channels[tag]
	if !ok {
		return nil, bridge.Errorf(bridge.CodeNotFound, "data channel %s not found", tag)
	}
	return dc, nil
}

// SendData writes buf and reports the resulting buffered amount.
func (e *Engine) SendData(_ context.Context, channel bridge.Tag, buf bridge.DataBuffer) error {
	dc, err := e.channel(channel)
	if err != nil {
		return err
	}
	if buf.Binary {
		data, err := buf.Bytes()
		if err != nil {
			return bridge.Errorf(bridge.CodeTypeError, "%v", err)
		}
		err = dc.Send(data)
		if err != nil {
			return rejection("send", err)
		}
	} else if err := dc.SendText(buf.Data); err != nil {
		return rejection("send", err)
	}
	e.bus.Publish(&bridge.DataChannelBufferedAmountChanged{Tag: channel, Amount: dc.BufferedAmount()})
	return nil
}

// CloseDataChannel reports closing before the channel shuts down.
func (e *Engine) CloseDataChannel(channel bridge.Tag) {
	dc, err := e.channel(channel)
	if err != nil {
		e.log.Debugf("close data channel: %v", err)
		return
	}
	e.bus.Publish(&bridge.DataChannelStateChanged{Tag: channel, State: "closing"})
	if err := dc.Close(); err != nil {
		e.log.Warnf("close data channel %s: %v", channel, err)
	}
}
