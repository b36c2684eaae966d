package pdu

import "github.com/codcod/smppai/frame"

// MinPDUSize is the smallest legal command_length: a bare header.
const MinPDUSize = frame.MinSize

// MaxPDUSize is the largest legal command_length accepted on the wire.
const MaxPDUSize = frame.MaxSize

// Status represents the four byte command_status field.
type Status uint32

// PDU command status set, SMPP v3.4 section 5.1.3.
const (
	StatusOK              Status = 0x00000000
	StatusInvMsgLen       Status = 0x00000001
	StatusInvCmdLen       Status = 0x00000002
	StatusInvCmdID        Status = 0x00000003
	StatusInvBnd          Status = 0x00000004
	StatusAlyBnd          Status = 0x00000005
	StatusInvPrtFlg       Status = 0x00000006
	StatusInvRegDlvFlg    Status = 0x00000007
	StatusSysErr          Status = 0x00000008
	StatusInvSrcAdr       Status = 0x0000000A
	StatusInvDstAdr       Status = 0x0000000B
	StatusInvMsgID        Status = 0x0000000C
	StatusBindFail        Status = 0x0000000D
	StatusInvPaswd        Status = 0x0000000E
	StatusInvSysID        Status = 0x0000000F
	StatusCancelFail      Status = 0x00000011
	StatusReplaceFail     Status = 0x00000013
	StatusMsgQFul         Status = 0x00000014
	StatusInvSerTyp       Status = 0x00000015
	StatusInvNumDe        Status = 0x00000033
	StatusInvDLName       Status = 0x00000034
	StatusInvDestFlag     Status = 0x00000040
	StatusInvSubRep       Status = 0x00000042
	StatusInvEsmClass     Status = 0x00000043
	StatusCntSubDL        Status = 0x00000044
	StatusSubmitFail      Status = 0x00000045
	StatusInvSrcTON       Status = 0x00000048
	StatusInvSrcNPI       Status = 0x00000049
	StatusInvDstTON       Status = 0x00000050
	StatusInvDstNPI       Status = 0x00000051
	StatusInvSysTyp       Status = 0x00000053
	StatusInvRepFlag      Status = 0x00000054
	StatusInvNumMsgs      Status = 0x00000055
	StatusThrottled       Status = 0x00000058
	StatusInvSched        Status = 0x00000061
	StatusInvExpiry       Status = 0x00000062
	StatusInvDftMsgID     Status = 0x00000063
	StatusTempAppErr      Status = 0x00000064
	StatusPermAppErr      Status = 0x00000065
	StatusRejeAppErr      Status = 0x00000066
	StatusQueryFail       Status = 0x00000067
	StatusInvOptParStream Status = 0x000000C0
	StatusOptParNotAllwd  Status = 0x000000C1
	StatusInvParLen       Status = 0x000000C2
	StatusMissingOptParam Status = 0x000000C3
	StatusInvOptParamVal  Status = 0x000000C4
	StatusDeliveryFailure Status = 0x000000FE
	StatusUnknownErr      Status = 0x000000FF
)

// CommandID is the four byte command_id field. The high bit
// (0x80000000) marks a response; the response id of request X is
// X | 0x80000000.
type CommandID uint32

// RespMask is the bit that distinguishes a response command_id from
// its request.
const RespMask CommandID = 0x80000000

// SMPP command set implemented by this package.
const (
	GenericNackID         CommandID = 0x80000000
	BindReceiverID        CommandID = 0x00000001
	BindReceiverRespID    CommandID = 0x80000001
	BindTransmitterID     CommandID = 0x00000002
	BindTransmitterRespID CommandID = 0x80000002
	SubmitSmID            CommandID = 0x00000004
	SubmitSmRespID        CommandID = 0x80000004
	DeliverSmID           CommandID = 0x00000005
	DeliverSmRespID       CommandID = 0x80000005
	UnbindID              CommandID = 0x00000006
	UnbindRespID          CommandID = 0x80000006
	BindTransceiverID     CommandID = 0x00000009
	BindTransceiverRespID CommandID = 0x80000009
	OutbindID             CommandID = 0x0000000B
	EnquireLinkID         CommandID = 0x00000015
	EnquireLinkRespID     CommandID = 0x80000015
)

// IsResponse reports whether id carries the response bit.
func IsResponse(id CommandID) bool {
	return id&RespMask != 0
}

// ResponseID returns the response command_id for a request id.
func ResponseID(id CommandID) CommandID {
	return id | RespMask
}

// SMPP mandatory field names, useful for error messages and logging.
const (
	SystemIDFld             string = "system_id"
	PasswordFld             string = "password"
	SystemTypeFld           string = "system_type"
	InterfaceVersionFld     string = "interface_version"
	AddrTonFld              string = "addr_ton"
	AddrNpiFld              string = "addr_npi"
	AddressRangeFld         string = "address_range"
	ServiceTypeFld          string = "service_type"
	SourceAddrTonFld        string = "source_addr_ton"
	SourceAddrNpiFld        string = "source_addr_npi"
	SourceAddrFld           string = "source_addr"
	DestAddrTonFld          string = "dest_addr_ton"
	DestAddrNpiFld          string = "dest_addr_npi"
	DestinationAddrFld      string = "destination_addr"
	EsmClassFld             string = "esm_class"
	ProtocolIDFld           string = "protocol_id"
	PriorityFlagFld         string = "priority_flag"
	ScheduleDeliveryTimeFld string = "schedule_delivery_time"
	ValidityPeriodFld       string = "validity_period"
	RegisteredDeliveryFld   string = "registered_delivery"
	ReplaceIfPresentFlagFld string = "replace_if_present_flag"
	DataCodingFld           string = "data_coding"
	SmDefaultMsgIDFld       string = "sm_default_msg_id"
	SmLengthFld             string = "sm_length"
	ShortMessageFld         string = "short_message"
	MessageIDFld            string = "message_id"
)

// TagID is the two byte optional parameter tag identifier.
type TagID uint16

// Recognized TLV tags, SMPP v3.4 section 5.3.2. Unrecognized tags are
// preserved verbatim by Options; this registry backs the typed Get/Set
// helpers for commonly used parameters. Options does not check the
// length or value of a known tag against its definition.
const (
	TagDestAddrSubUnit        TagID = 0x0005
	TagDestNetworkType        TagID = 0x0006
	TagDestBearerType         TagID = 0x0007
	TagDestTelematicsID       TagID = 0x0008
	TagSourceAddrSubunit      TagID = 0x000D
	TagSourceNetworkType      TagID = 0x000E
	TagSourceBearerType       TagID = 0x000F
	TagSourceTelematicsID     TagID = 0x0010
	TagQosTimeToLive          TagID = 0x0017
	TagPayloadType            TagID = 0x0019
	TagAdditionalStatusInfoTe TagID = 0x001D
	TagReceiptedMessageID     TagID = 0x001E
	TagMsMsgWaitFacilities    TagID = 0x0030
	TagPrivacyIndicator       TagID = 0x0201
	TagSourceSubaddress       TagID = 0x0202
	TagDestSubaddress         TagID = 0x0203
	TagUserMessageReference   TagID = 0x0204
	TagUserResponseCode       TagID = 0x0205
	TagSourcePort             TagID = 0x020A
	TagDestinationPort        TagID = 0x020B
	TagSarMsgRefNum           TagID = 0x020C
	TagLanguageIndicator      TagID = 0x020D
	TagSarTotalSegments       TagID = 0x020E
	TagSarSegmentSeqnum       TagID = 0x020F
	TagScInterfaceVersion     TagID = 0x0210
	TagCallbackNumPresInd     TagID = 0x0302
	TagCallbackNumA           TagID = 0x0303
	TagNumberOfMessages       TagID = 0x0304
	TagCallbackNum            TagID = 0x0381
	TagDpfResult              TagID = 0x0420
	TagSetDPF                 TagID = 0x0421
	TagMsAvailabilityStatus   TagID = 0x0422
	TagNetworkErrorCode       TagID = 0x0423
	TagMessagePayload         TagID = 0x0424
	TagDeliveryFailureReason  TagID = 0x0425
	TagMoreMessagesToSend     TagID = 0x0426
	TagMessageState           TagID = 0x0427
	TagUssdServiceOp          TagID = 0x0501
	TagDisplayTime            TagID = 0x1201
	TagSmsSignal              TagID = 0x1203
	TagMsValidity             TagID = 0x1204
	TagAlertOnMessageDeliv    TagID = 0x130C
	TagItsReplyType           TagID = 0x1380
	TagItsSessionInfo         TagID = 0x1383
)

// C-octet string field maximums, including the terminating NUL,
// SMPP v3.4 section 5.2.1.
const (
	MaxSystemIDLen     = 16
	MaxPasswordLen     = 9
	MaxSystemTypeLen   = 13
	MaxAddressRangeLen = 41
	MaxServiceTypeLen  = 6
	MaxAddrLen         = 21
	MaxMessageIDLen    = 65
	MaxShortMessageLen = 254
)
