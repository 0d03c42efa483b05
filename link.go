package nrf24

// link tracks the two users of the bus on the receiver side: ack payload
// uploads started by the application and receive chains started by the IRQ.
// Only one of them may own the bus; the other is remembered and started from
// the owner's completion.
type link uint8

const (
	linkIdle                 link = iota
	linkUploading                 // ack payload on the bus
	linkUploadingRecvPending      // ack payload on the bus, IRQ waiting
	linkUploadingRecvPendingSendPending
	linkReceiving            // receive chain on the bus
	linkReceivingSendPending // receive chain on the bus, ack payload waiting
	linkReceivingRecvPending // receive chain on the bus, IRQ waiting
	linkReceivingRecvPendingSendPending
)

var linkNames = [...]string{
	"idle", "uploading", "uploading+recv", "uploading+recv+send",
	"receiving", "receiving+send", "receiving+recv", "receiving+recv+send",
}

func (l link) String() string {
	if int(l) < len(linkNames) {
		return linkNames[l]
	}
	return "unknown"
}

type linkEvent uint8

const (
	evStore       linkEvent = iota // StoreAckPayload
	evIRQ                          // radio interrupt
	evUploadDone                   // ack payload transaction finished
	evReceiveDone                  // receive callback returned
)

func (e linkEvent) String() string {
	switch e {
	case evStore:
		return "store"
	case evIRQ:
		return "irq"
	case evUploadDone:
		return "upload-done"
	case evReceiveDone:
		return "receive-done"
	default:
		return "unknown"
	}
}

type linkAction uint8

const (
	actNone    linkAction = iota
	actUpload             // write the stored ack payload now
	actDefer              // keep the stored ack payload for later
	actReceive            // start the receive chain
	actFault
)

func (a linkAction) String() string {
	switch a {
	case actNone:
		return "none"
	case actUpload:
		return "upload"
	case actDefer:
		return "defer"
	case actReceive:
		return "receive"
	default:
		return "fault"
	}
}

// next returns the state after ev and what the driver must do about it.
// On actFault the state is unchanged.
func (l link) next(ev linkEvent) (link, linkAction) {
	switch ev {
	case evStore:
		switch l {
		case linkIdle:
			return linkUploading, actUpload
		case linkUploadingRecvPending, linkUploadingRecvPendingSendPending:
			return linkUploadingRecvPendingSendPending, actDefer
		case linkReceiving, linkReceivingSendPending:
			return linkReceivingSendPending, actDefer
		case linkReceivingRecvPending, linkReceivingRecvPendingSendPending:
			return linkReceivingRecvPendingSendPending, actDefer
		}
	case evIRQ:
		switch l {
		case linkIdle:
			return linkReceiving, actReceive
		case linkUploading, linkUploadingRecvPending:
			return linkUploadingRecvPending, actNone
		case linkUploadingRecvPendingSendPending:
			return l, actNone
		case linkReceiving, linkReceivingRecvPending:
			return linkReceivingRecvPending, actNone
		case linkReceivingSendPending, linkReceivingRecvPendingSendPending:
			return linkReceivingRecvPendingSendPending, actNone
		}
	case evUploadDone:
		switch l {
		case linkUploading:
			return linkIdle, actNone
		case linkUploadingRecvPending:
			return linkReceiving, actReceive
		case linkUploadingRecvPendingSendPending:
			return linkReceivingSendPending, actReceive
		}
	case evReceiveDone:
		switch l {
		case linkReceiving:
			return linkIdle, actNone
		case linkReceivingSendPending:
			return linkUploading, actUpload
		case linkReceivingRecvPending:
			return linkReceiving, actReceive
		case linkReceivingRecvPendingSendPending:
			return linkUploadingRecvPending, actUpload
		}
	}
	return l, actFault
}
