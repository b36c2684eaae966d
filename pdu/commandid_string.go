package pdu

import "fmt"

// String implements fmt.Stringer for CommandID.
func (c CommandID) String() string {
	switch c {
	case GenericNackID:
		return "generic_nack"
	case BindReceiverID:
		return "bind_receiver"
	case BindReceiverRespID:
		return "bind_receiver_resp"
	case BindTransmitterID:
		return "bind_transmitter"
	case BindTransmitterRespID:
		return "bind_transmitter_resp"
	case SubmitSmID:
		return "submit_sm"
	case SubmitSmRespID:
		return "submit_sm_resp"
	case DeliverSmID:
		return "deliver_sm"
	case DeliverSmRespID:
		return "deliver_sm_resp"
	case UnbindID:
		return "unbind"
	case UnbindRespID:
		return "unbind_resp"
	case BindTransceiverID:
		return "bind_transceiver"
	case BindTransceiverRespID:
		return "bind_transceiver_resp"
	case OutbindID:
		return "outbind"
	case EnquireLinkID:
		return "enquire_link"
	case EnquireLinkRespID:
		return "enquire_link_resp"
	default:
		return fmt.Sprintf("command_id(0x%08X)", uint32(c))
	}
}

// String implements fmt.Stringer for Status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ESME_ROK"
	case StatusInvMsgLen:
		return "ESME_RINVMSGLEN"
	case StatusInvCmdLen:
		return "ESME_RINVCMDLEN"
	case StatusInvCmdID:
		return "ESME_RINVCMDID"
	case StatusInvBnd:
		return "ESME_RINVBNDSTS"
	case StatusAlyBnd:
		return "ESME_RALYBND"
	case StatusInvPrtFlg:
		return "ESME_RINVPRTFLG"
	case StatusInvRegDlvFlg:
		return "ESME_RINVREGDLVFLG"
	case StatusSysErr:
		return "ESME_RSYSERR"
	case StatusInvSrcAdr:
		return "ESME_RINVSRCADR"
	case StatusInvDstAdr:
		return "ESME_RINVDSTADR"
	case StatusInvMsgID:
		return "ESME_RINVMSGID"
	case StatusBindFail:
		return "ESME_RBINDFAIL"
	case StatusInvPaswd:
		return "ESME_RINVPASWD"
	case StatusInvSysID:
		return "ESME_RINVSYSID"
	case StatusMsgQFul:
		return "ESME_RMSGQFUL"
	case StatusInvSerTyp:
		return "ESME_RINVSERTYP"
	case StatusInvEsmClass:
		return "ESME_RINVESMCLASS"
	case StatusSubmitFail:
		return "ESME_RSUBMITFAIL"
	case StatusInvSrcTON:
		return "ESME_RINVSRCTON"
	case StatusInvSrcNPI:
		return "ESME_RINVSRCNPI"
	case StatusInvDstTON:
		return "ESME_RINVDSTTON"
	case StatusInvDstNPI:
		return "ESME_RINVDSTNPI"
	case StatusInvSysTyp:
		return "ESME_RINVSYSTYP"
	case StatusInvRepFlag:
		return "ESME_RINVREPFLAG"
	case StatusInvNumMsgs:
		return "ESME_RINVNUMMSGS"
	case StatusThrottled:
		return "ESME_RTHROTTLED"
	case StatusInvSched:
		return "ESME_RINVSCHED"
	case StatusInvExpiry:
		return "ESME_RINVEXPIRY"
	case StatusInvDftMsgID:
		return "ESME_RINVDFTMSGID"
	case StatusTempAppErr:
		return "ESME_RX_T_APPN"
	case StatusPermAppErr:
		return "ESME_RX_P_APPN"
	case StatusRejeAppErr:
		return "ESME_RX_R_APPN"
	case StatusInvOptParStream:
		return "ESME_RINVOPTPARSTREAM"
	case StatusOptParNotAllwd:
		return "ESME_ROPTPARNOTALLWD"
	case StatusInvParLen:
		return "ESME_RINVPARLEN"
	case StatusMissingOptParam:
		return "ESME_RMISSINGOPTPARAM"
	case StatusInvOptParamVal:
		return "ESME_RINVOPTPARAMVAL"
	case StatusDeliveryFailure:
		return "ESME_RDELIVERYFAILURE"
	case StatusUnknownErr:
		return "ESME_RUNKNOWNERR"
	default:
		return fmt.Sprintf("status(0x%08X)", uint32(s))
	}
}
